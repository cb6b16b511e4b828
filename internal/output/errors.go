package output

import (
	"errors"
	"fmt"

	"github.com/stegverse/stegagents/pkg/cerr"
	"github.com/stegverse/stegagents/pkg/storage"
)

// WriteError reports an artifact that could not be persisted.
type WriteError struct {
	Agent string
	Path  string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write artifact for agent %q at %s: %v", e.Agent, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func (e *WriteError) Code() cerr.Code {
	if errors.Is(e.Err, storage.ErrAlreadyExists) {
		return cerr.AlreadyExists
	}
	return cerr.Internal
}
