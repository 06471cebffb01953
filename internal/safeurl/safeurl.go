package safeurl

import "net/url"

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to validate a configured upstream base URL at startup, rejecting
// file://, ftp://, and other schemes the worker's fetch step has no business
// dereferencing.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}
