package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// TransportError indicates a network failure or a non-2xx response.
type TransportError struct {
	URL        string
	StatusCode int
	Kind       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: GET %s: status %d: %v", e.Kind, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: GET %s: %v", e.Kind, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RedirectError indicates the server answered with a redirect where content
// was expected. The site redirects unknown ids to a generic page, so a
// redirect means the resource does not exist.
type RedirectError struct {
	URL        string
	Location   string
	StatusCode int
}

func (e *RedirectError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("redirect: GET %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("redirect: GET %s: status %d to %s", e.URL, e.StatusCode, e.Location)
}

// IsRedirect reports whether err is or wraps a *RedirectError.
func IsRedirect(err error) bool {
	var redirect *RedirectError
	return errors.As(err, &redirect)
}

// IsTransport reports whether err is or wraps a *TransportError.
func IsTransport(err error) bool {
	var transport *TransportError
	return errors.As(err, &transport)
}

func classify(rawURL string, err error, statusCode int) *TransportError {
	if err == nil && statusCode != 0 {
		err = fmt.Errorf("http status %d", statusCode)
	}
	te := &TransportError{URL: rawURL, StatusCode: statusCode, Err: err}

	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		te.Kind = "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		te.Kind = "timeout"
	case errors.As(err, &opErr):
		te.Kind = "connection"
	case statusCode == http.StatusForbidden:
		te.Kind = "forbidden"
	case statusCode == http.StatusNotFound:
		te.Kind = "not_found"
	case statusCode == http.StatusTooManyRequests:
		te.Kind = "rate_limited"
	case statusCode != 0:
		te.Kind = "http_status"
	default:
		te.Kind = "transport"
	}
	return te
}
