// Package apperr holds the sentinel errors shared across postdesk packages.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrBusy              = errors.New("operation in progress")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrClosed            = errors.New("composer closed")
	ErrTooLarge          = errors.New("payload too large")
)
