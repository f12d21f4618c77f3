package sockev

import "errors"

var (
	ErrLoopClosed        = errors.New("sockev: event loop is closed")
	ErrAlreadyRunning    = errors.New("sockev: event loop is already running")
	ErrAlreadyRegistered = errors.New("sockev: descriptor already registered")
	ErrDescriptorRange   = errors.New("sockev: descriptor out of select range")
	ErrNilHandler        = errors.New("sockev: nil handler")
	ErrPathTooLong       = errors.New("sockev: socket path too long")
	ErrEmptyPath         = errors.New("sockev: empty socket path")
)
