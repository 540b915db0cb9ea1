package errno

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := New("core_start", EINVAL)
	require.Equal(t, "core_start: EINVAL", e.Error())

	bare := &Error{Code: EBUSY}
	require.Equal(t, "EBUSY", bare.Error())
}

func TestIsSentinel(t *testing.T) {
	err := New("interrupt_register", EBUSY)
	require.True(t, errors.Is(err, ErrBusy))
	require.False(t, errors.Is(err, ErrInvalid))
}

func TestCodeOf(t *testing.T) {
	code, ok := CodeOf(New("x", EAGAIN))
	require.True(t, ok)
	require.Equal(t, EAGAIN, code)

	_, ok = CodeOf(errors.New("plain"))
	require.False(t, ok)
}

func TestCodeString(t *testing.T) {
	require.Equal(t, "EEXIST", EEXIST.String())
	require.Equal(t, "EUNKNOWN", Code(999).String())
}
