package pipeline

import "fmt"

// ConfigurationError signals an invalid or incoherent configuration. Fatal:
// the run aborts before any stage executes.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// OutputWriteFailure signals that the digest or ledger could not be
// persisted. Fatal: a run whose output is lost did not happen.
type OutputWriteFailure struct {
	Err error
}

func (e *OutputWriteFailure) Error() string {
	return fmt.Sprintf("output write failure: %v", e.Err)
}

func (e *OutputWriteFailure) Unwrap() error { return e.Err }
