package heavy

import "fmt"

// StartupConfigError reports a condition that must be fixed by the operator
// before any remote call is made: a missing credential, a missing prompt file,
// or an invalid configuration value.
type StartupConfigError struct {
	Field  string
	Reason string
}

func (e *StartupConfigError) Error() string {
	if e.Field == "" {
		return "startup configuration: " + e.Reason
	}
	return fmt.Sprintf("startup configuration: %s: %s", e.Field, e.Reason)
}

// RemoteServiceError wraps any failure returned by a model backend.
// It is never retried and aborts the run that produced it.
type RemoteServiceError struct {
	Provider string
	Model    string
	Err      error
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("remote service %s (model %s): %v", e.Provider, e.Model, e.Err)
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// VoteParseError is produced when a voter round does not answer with an
// integer in [1, Candidates]. The round is discarded; the run continues.
type VoteParseError struct {
	Reply      string
	Candidates int
	Reason     string
}

func (e *VoteParseError) Error() string {
	return fmt.Sprintf("vote %q discarded (%d candidates): %s", e.Reply, e.Candidates, e.Reason)
}
