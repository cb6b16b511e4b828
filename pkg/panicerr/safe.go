// Package panicerr turns panics into errors so one failing unit of work
// cannot take down its siblings.
package panicerr

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// Do runs fn and returns a recovered panic as an error, or nil.
// The error carries the panic value and the goroutine stack.
func Do(fn func()) error {
	var catcher panics.Catcher
	catcher.Try(fn)
	return catcher.Recovered().AsError()
}

// SafeContext wraps fn so that a panic is returned as its error.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var err error
		if perr := Do(func() { err = fn(ctx) }); perr != nil {
			return perr
		}
		return err
	}
}
