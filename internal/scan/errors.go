package scan

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Trigger when a scan is in progress.
// Overlapping triggers are rejected, never queued.
var ErrAlreadyRunning = errors.New("scan already in progress")

// AdapterError failure kinds.
const (
	KindNetwork = "network"
	KindTimeout = "timeout"
	KindAuth    = "auth"
	KindFormat  = "format"
)

// AdapterError is a whole-source failure: connection, auth, timeout, or an
// unparseable response. It is isolated to its source; other sources in the
// same run proceed.
type AdapterError struct {
	SourceID string
	Kind     string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.SourceID, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

func adapterErr(sourceID, kind string, err error) *AdapterError {
	return &AdapterError{SourceID: sourceID, Kind: kind, Err: err}
}
