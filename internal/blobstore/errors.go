package blobstore

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that no blob exists for an id or key.
var ErrNotFound = errors.New("blob not found")

// StorageWriteError reports that the storage medium rejected a write.
type StorageWriteError struct {
	Op  string
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("storage write failed (%s): %v", e.Op, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// StorageReadError reports a failure while opening or reading stored bytes.
type StorageReadError struct {
	Op  string
	Err error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("storage read failed (%s): %v", e.Op, e.Err)
}

func (e *StorageReadError) Unwrap() error { return e.Err }
