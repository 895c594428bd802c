package validator

// Status is the outcome of classifying a single link. Besides the fixed
// values below it may hold any "<code> <reason>" HTTP status line.
type Status string

const (
	// StatusOK is the only classification that is not reported.
	StatusOK Status = "200 OK"

	StatusUnsafe              Status = "Unsafe link"
	StatusUnspecifiedProtocol Status = "Unspecified protocol"
	StatusMalformed           Status = "Malformed link"
	StatusIncorrectStatusCode Status = "Incorrect Status Code"
	StatusNotFound            Status = "404 Not Found"
)

// Bad reports whether s should be persisted.
func (s Status) Bad() bool {
	return s != "" && s != StatusOK
}
