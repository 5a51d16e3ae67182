package store

import (
	"errors"
	"fmt"
)

// ErrStorage classifies local durable store failures. Callers treat them as
// non-fatal: the write is retried on the next debounce or sync cycle, and the
// in-memory form state stays authoritative meanwhile.
var ErrStorage = errors.New("local store error")

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
