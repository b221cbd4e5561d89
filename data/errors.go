package data

import (
	"errors"
	"sync"
)

// Standard errors that locators, origins and filters should use.
var (
	// Resolution errors
	ErrNotFound    = errors.New("assetloader: asset not found")
	ErrLoadFailure = errors.New("assetloader: asset load failed")

	// Origin errors
	ErrOriginFailed = errors.New("assetloader: origin request failed")
	ErrUnsupported  = errors.New("assetloader: operation unsupported by origin")
	ErrTooLarge     = errors.New("assetloader: asset exceeds origin size limit")

	// Locking errors
	ErrLockMisuse = errors.New("assetloader: lock released without matching acquire")

	// I/O errors
	ErrClosed  = errors.New("assetloader: stream already closed")
	ErrInvalid = errors.New("assetloader: invalid argument")
)

// Errors collects failures from operations that continue past the first error.
type Errors struct {
	mu     sync.RWMutex
	errors []error
}

func (e *Errors) Add(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = append(e.errors, err)
}

func (e *Errors) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.errors)
}

func (e *Errors) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = nil
}

func (e *Errors) Errors() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.errors) == 0 {
		return nil
	}

	return errors.Join(e.errors...)
}
