package nvd

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	ErrRemoteUnavailable = xerrors.New("NVD API endpoint not responding")
	ErrRemoteRejected    = xerrors.New("NVD API endpoint refused the request")
	ErrMalformedResponse = xerrors.New("failed to parse NVD API response")
	ErrInvalidWindow     = xerrors.New("amount and page must be 1 or greater")
)

// RejectedError is returned for non-2xx responses. It matches ErrRemoteRejected.
type RejectedError struct {
	StatusCode int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: status code %d", ErrRemoteRejected, e.StatusCode)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRemoteRejected
}
