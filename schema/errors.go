package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrIndexOutOfRange indicates a tab position outside the current order.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrOrderMismatch indicates a new order that is not a permutation of the current tabs.
	ErrOrderMismatch = errors.New("tab order mismatch")
	// ErrUnknownTabType indicates a tab type outside the program catalogue.
	ErrUnknownTabType = errors.New("unknown tab type")
	// ErrInvalidTransfer indicates a malformed cross-window transfer payload.
	ErrInvalidTransfer = errors.New("invalid transfer payload")
	// ErrSameWindow indicates a transfer dropped back onto its source window.
	ErrSameWindow = errors.New("transfer from same window")
	// ErrWindowNotFound indicates a requested window could not be found.
	ErrWindowNotFound = errors.New("window not found")
	// ErrDragInProgress indicates a drag gesture is already running.
	ErrDragInProgress = errors.New("drag in progress")
	// ErrNoDrag indicates no drag gesture is running.
	ErrNoDrag = errors.New("no drag in progress")
)
