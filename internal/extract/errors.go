package extract

import "fmt"

// ParseError reports a URL that cannot yield link metadata.
type ParseError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse url %q: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse url %q: %s", e.URL, e.Reason)
}

// Unwrap returns the underlying parse failure, if any.
func (e *ParseError) Unwrap() error { return e.Err }

// FetchError reports a transport failure or cancellation while retrieving a
// page. Non-2xx responses are not FetchErrors.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %q: %v", e.URL, e.Err)
}

// Unwrap returns the transport error.
func (e *FetchError) Unwrap() error { return e.Err }
