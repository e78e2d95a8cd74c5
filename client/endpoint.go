package client

import "strings"

// IsRemote reports whether endpoint names a remote path of the form
// "host:path".
func IsRemote(endpoint string) bool {
	return strings.Contains(endpoint, ":")
}

// SplitEndpoint splits a "host:path" endpoint at the first colon. The
// path may itself contain colons.
func SplitEndpoint(endpoint string) (host, path string) {
	host, path, found := strings.Cut(endpoint, ":")
	if !found {
		return endpoint, ""
	}
	return host, path
}
