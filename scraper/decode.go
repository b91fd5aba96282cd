package scraper

import (
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// decodeBody returns body as UTF-8 text. The collector has already converted
// bodies whose Content-Type names a charset; anything else is detected from a
// byte order mark or meta declaration, then sniffed statistically. Bytes that
// still do not decode are replaced.
func decodeBody(body []byte, contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "charset") || utf8.Valid(body) {
		return strings.ToValidUTF8(string(body), "\uFFFD")
	}

	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if certain || (name != "windows-1252" && name != "utf-8") {
		if out, err := enc.NewDecoder().Bytes(body); err == nil {
			return string(out)
		}
	}

	if guess, err := chardet.NewHtmlDetector().DetectBest(body); err == nil {
		if enc, _ := charset.Lookup(guess.Charset); enc != nil {
			if out, err := enc.NewDecoder().Bytes(body); err == nil {
				return string(out)
			}
		}
	}
	return strings.ToValidUTF8(string(body), "\uFFFD")
}
