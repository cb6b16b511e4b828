package cerr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stegverse/stegagents/pkg/clog"
)

type httpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON encodes response as JSON with status 200.
func WriteJSON(ctx context.Context, rw http.ResponseWriter, response any) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(response); err != nil {
		WriteJSONError(ctx, rw, NewError(Internal, "server error", err))
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	if _, err := rw.Write(buf.Bytes()); err != nil {
		clog.AddError(ctx, NewError(Internal, "server error", err))
	}
}

// WriteJSONError writes err as {"code","message"} with the matching HTTP
// status. Errors that are not *Error are reported by their Coder code, or as
// unknown.
func WriteJSONError(ctx context.Context, rw http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) {
		err = NewError(Canceled, "connection closed", err)
	}
	clog.AddError(ctx, err)

	var cErr *Error
	if !errors.As(err, &cErr) {
		code := CodeOf(err)
		msg := "unknown error"
		if code != Unknown {
			msg = err.Error()
		}
		cErr = NewError(code, msg, err)
	}
	if cErr.Stack != "" {
		clog.AddStack(ctx, cErr.Stack)
	}

	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(cErr.Code.HTTPCode())
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if encErr := enc.Encode(httpError{Code: cErr.Code.String(), Message: cErr.Msg}); encErr != nil {
		buf = bytes.NewBufferString(`{"code":"internal","message":"server error"}`)
	}
	if _, werr := rw.Write(buf.Bytes()); werr != nil {
		clog.AddError(ctx, errors.Join(cErr, werr))
	}
}
