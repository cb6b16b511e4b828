package panicerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	assert.NoError(t, Do(func() {}))

	err := Do(func() { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestSafeContext(t *testing.T) {
	want := errors.New("plain failure")
	fn := SafeContext(func(context.Context) error { return want })
	assert.ErrorIs(t, fn(context.Background()), want)

	fn = SafeContext(func(context.Context) error { panic("boom") })
	err := fn(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
