package registry

import (
	"fmt"

	"github.com/stegverse/stegagents/pkg/cerr"
)

// ConfigError reports a registry that cannot be used. It is fatal for the
// whole invocation.
type ConfigError struct {
	Source string
	// Index is the zero based agent entry, or -1 for document level problems.
	Index  int
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	loc := e.Source
	if e.Index >= 0 {
		loc = fmt.Sprintf("%s: agents[%d]", loc, e.Index)
	}
	if e.Field != "" {
		loc = fmt.Sprintf("%s.%s", loc, e.Field)
	}
	msg := fmt.Sprintf("config error: %s: %s", loc, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Code() cerr.Code {
	return cerr.InvalidArgument
}

func documentError(source, reason string, err error) *ConfigError {
	return &ConfigError{Source: source, Index: -1, Reason: reason, Err: err}
}

func entryError(source string, index int, field, reason string) *ConfigError {
	return &ConfigError{Source: source, Index: index, Field: field, Reason: reason}
}
