package reliability

import "strconv"

// IsRetryableHTTPStatus reports whether an upstream status is worth trying again later.
// Nothing in the request path retries automatically; the flag only feeds logs and metrics.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// StatusCode returns a short, low-cardinality label for an upstream HTTP status.
// A zero status means the request never got a response.
func StatusCode(code int) string {
	switch {
	case code == 0:
		return "transport"
	case code == 429:
		return "rate_limited"
	case code == 401 || code == 403:
		return "unauthorized"
	case code == 408 || code == 504:
		return "timeout"
	case code >= 500:
		return "server_" + strconv.Itoa(code)
	case code >= 400:
		return "client_" + strconv.Itoa(code)
	default:
		return "ok"
	}
}
