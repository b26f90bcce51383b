package domain

// Flags describe a finished transfer
type Flags struct {
	// Retrieved is set when the transfer completed in full
	Retrieved bool

	// HTML is set when the content is an HTML document
	HTML bool
}

// Outcome is what a protocol loop reports for one attempt at a URL.
// NewLocation is only meaningful for StatusRedirected and LocalFile only
// for success or partial success; use the constructors below.
type Outcome struct {
	Status      Status
	NewLocation string
	LocalFile   string
	Flags       Flags

	// Bytes is the number of bytes transferred by this call, excluding
	// any restart offset
	Bytes int64
}

// Redirect returns a redirect outcome carrying the reported location
func Redirect(location string) Outcome {
	return Outcome{Status: StatusRedirected, NewLocation: location}
}

// Failed returns an outcome without payload
func Failed(status Status) Outcome {
	return Outcome{Status: status}
}

// Partial returns a failed outcome that left data in localFile
func Partial(status Status, localFile string, bytes int64) Outcome {
	return Outcome{Status: status, LocalFile: localFile, Bytes: bytes}
}

// Completed returns a successful outcome
func Completed(localFile string, html bool, bytes int64) Outcome {
	return Outcome{
		Status:    StatusOK,
		LocalFile: localFile,
		Flags:     Flags{Retrieved: true, HTML: html},
		Bytes:     bytes,
	}
}
