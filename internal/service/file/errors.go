package file

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyFile   = errors.New("file is empty")
	ErrObjectStore = errors.New("object storage unavailable")
	ErrKeyNotFound = errors.New("object not found")
)

// OrphanedError is a failed write whose uploads were already stored. Keys
// are no longer referenced by any row.
type OrphanedError struct {
	Keys []string
	Err  error
}

func (e *OrphanedError) Error() string {
	return fmt.Sprintf("%v (%d stored uploads unreferenced)", e.Err, len(e.Keys))
}

func (e *OrphanedError) Unwrap() error { return e.Err }

// Orphaned wraps err with the stored keys of m. It returns err unchanged when
// nothing was stored.
func Orphaned(err error, m Manifest) error {
	keys := m.Keys()
	if err == nil || len(keys) == 0 {
		return err
	}
	return &OrphanedError{Keys: keys, Err: err}
}
