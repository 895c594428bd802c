package validator

import "errors"

var (
	// ErrMissingContentID is returned when a record has no owning content ID.
	ErrMissingContentID = errors.New("record is missing a content ID")

	// ErrMissingURL is returned when a record has an empty URL.
	ErrMissingURL = errors.New("record is missing a URL")

	// ErrGoodLink is returned when attempting to store a link that is not
	// classified as bad.
	ErrGoodLink = errors.New("only bad links can be stored")
)
