package catcher

import "errors"

var (
	// ErrServiceUnavailable means a service did not answer the availability check in time.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrRequestFailed means a service call failed in transport or was rejected.
	ErrRequestFailed = errors.New("service request failed")
)
