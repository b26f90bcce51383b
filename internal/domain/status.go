package domain

// Status is the terminal result of one retrieval.
type Status int

const (
	StatusOK Status = iota
	StatusNoConnection
	StatusURLError
	StatusProxyError
	StatusRedirected
	StatusRedirectCycle
	StatusQuotaExceeded
	StatusTooManyRedirects
	StatusHTTPError
	StatusWriteError
)

var statusNames = map[Status]string{
	StatusOK:               "ok",
	StatusNoConnection:     "no_connection",
	StatusURLError:         "url_error",
	StatusProxyError:       "proxy_error",
	StatusRedirected:       "redirected",
	StatusRedirectCycle:    "redirect_cycle",
	StatusQuotaExceeded:    "quota_exceeded",
	StatusTooManyRedirects: "too_many_redirects",
	StatusHTTPError:        "http_error",
	StatusWriteError:       "write_error",
}

// String returns the status name used in logs
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Fatal reports whether the status marks a failed retrieval.
// Redirected is an intermediate status and never fatal.
func (s Status) Fatal() bool {
	return s != StatusOK && s != StatusRedirected
}
