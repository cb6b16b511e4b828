package cerr

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/stegverse/stegagents/pkg/clog"
)

type Error struct {
	Code  Code
	Msg   string // message safe to show to callers alongside Code
	Err   error  // underlying error, logged only
	Stack string
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if clog.HTTPStatusToLevel(code.HTTPCode()) == clog.LevelError {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code.String(), e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Coder is implemented by domain errors that carry their own Code.
type Coder interface {
	Code() Code
}

// CodeOf reports the Code of err: a *Error's Code, a Coder's Code, or Unknown.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	var coder Coder
	if errors.As(err, &coder) {
		return coder.Code()
	}
	return Unknown
}

func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
