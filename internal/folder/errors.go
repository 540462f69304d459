package folder

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidName    = errors.New("invalid directory name")
	ErrRegistryClosed = errors.New("folder registry is closed")
	ErrUnsupported    = errors.ErrUnsupported
)

// ListingError reports a directory listing that did not complete.
type ListingError struct {
	Path string
	Err  error
}

func (err *ListingError) Error() string {
	return fmt.Sprintf("list %s: %v", err.Path, err.Err)
}

func (err *ListingError) Unwrap() error {
	return err.Err
}

// CreateDirectoryError reports a failed MakeDirectory call.
type CreateDirectoryError struct {
	Path string
	Err  error
}

func (err *CreateDirectoryError) Error() string {
	return fmt.Sprintf("create directory %s: %v", err.Path, err.Err)
}

func (err *CreateDirectoryError) Unwrap() error {
	return err.Err
}
