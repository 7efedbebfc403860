// Package extract derives link and page metadata from URLs.
package extract

import (
	"fmt"
	"net/url"
	"strings"
)

// LinkMetadata is what a URL says about its site without any network access.
type LinkMetadata struct {
	Domain string `json:"domain"`
	UseSSL bool   `json:"use_ssl"`
}

// LinkInfo parses rawURL. It fails with *ParseError when the URL does not
// parse or lacks a scheme or host.
func LinkInfo(rawURL string) (LinkMetadata, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return LinkMetadata{}, &ParseError{URL: rawURL, Reason: "malformed", Err: err}
	}
	if u.Scheme == "" {
		return LinkMetadata{}, &ParseError{URL: rawURL, Reason: "missing scheme"}
	}
	if u.Host == "" {
		return LinkMetadata{}, &ParseError{URL: rawURL, Reason: "missing host"}
	}
	return LinkMetadata{
		Domain: u.Host,
		UseSSL: strings.EqualFold(u.Scheme, "https"),
	}, nil
}

// RequestPath returns the path and query of rawURL, "/" when empty.
func RequestPath(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", &ParseError{URL: rawURL, Reason: "malformed", Err: err}
	}
	return u.RequestURI(), nil
}

// NormalizeURL standardizes a URL to avoid duplicate crawls.
// It lowercases the scheme and host, removes default ports and the fragment,
// and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}
