package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind categorizes a failed fetch.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota + 1
	KindHTTPStatus
	KindParse
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTPStatus:
		return "http_status"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// FetchError reports a page that could not be retrieved or parsed.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// classifyError maps a collector failure onto a FetchError. A non-zero
// statusCode means the server answered.
func classifyError(pageURL string, statusCode int, err error) *FetchError {
	if statusCode != 0 {
		if err == nil {
			err = errors.New(http.StatusText(statusCode))
		}
		return &FetchError{Kind: KindHTTPStatus, URL: pageURL, StatusCode: statusCode, Err: err}
	}
	if err == nil {
		err = errors.New("empty response")
	}
	return &FetchError{Kind: KindNetwork, URL: pageURL, Err: err}
}

// IsRetryable reports whether another attempt could succeed: network
// failures and throttling or server-side statuses.
func IsRetryable(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.Kind {
	case KindNetwork:
		return !errors.Is(fe.Err, context.Canceled)
	case KindHTTPStatus:
		switch fe.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
			return true
		}
		return fe.StatusCode >= http.StatusInternalServerError
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// errorTypeLabel returns the metrics label for err.
func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		if isTimeout(err) {
			return "timeout"
		}
		return "other"
	}
	switch fe.Kind {
	case KindNetwork:
		if isTimeout(fe.Err) {
			return "timeout"
		}
		var opErr *net.OpError
		if errors.As(fe.Err, &opErr) {
			return "connection"
		}
		return "other"
	case KindHTTPStatus:
		switch fe.StatusCode {
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusNotFound:
			return "not_found"
		case http.StatusTooManyRequests:
			return "rate_limited"
		}
		return "http_status"
	case KindParse:
		return "parse"
	}
	return "other"
}
