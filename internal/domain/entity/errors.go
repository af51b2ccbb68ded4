package entity

import "errors"

// Error taxonomy of a graph run. Components wrap these with fmt.Errorf("%w: ...")
// so callers can classify failures with errors.Is.
var (
	ErrConfig    = errors.New("config error")
	ErrNetwork   = errors.New("network error")
	ErrAuth      = errors.New("auth error")
	ErrQuota     = errors.New("quota error")
	ErrExecution = errors.New("execution error")
	ErrIO        = errors.New("io error")
)
