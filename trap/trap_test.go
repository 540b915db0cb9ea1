package trap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nanvix-go/hal/errno"
	"github.com/nanvix-go/hal/klog"
)

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	tb := New(4)
	require.Equal(t, ModeNormal, tb.Mode())

	require.NoError(t, tb.Register(0, "page fault", func(uintptr, int) {}))
	err := tb.Register(0, "page fault", func(uintptr, int) {})
	code, ok := errno.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, errno.EBUSY, code)

	require.NoError(t, tb.Unregister(0))
	err = tb.Unregister(0)
	code, ok = errno.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, errno.EINVAL, code)
}

func TestDispatchFlipsModeForDuration(t *testing.T) {
	tb := New(2)
	log := klog.New("test", klog.ERROR)

	var observedMode Mode
	require.NoError(t, tb.Register(1, "divide by zero", func(addr uintptr, kcall int) {
		observedMode = tb.Mode()
	}))

	tb.Dispatch(1, 0x1000, log)
	require.Equal(t, ModeTrap, observedMode)
	require.Equal(t, ModeNormal, tb.Mode())
}

func TestDoKcallRestoresPreviousMode(t *testing.T) {
	tb := New(1)
	var seenDuring Mode

	result := tb.DoKcall(42, func(kcall int) int64 {
		seenDuring = tb.Mode()
		return int64(kcall) * 2
	})

	require.Equal(t, ModeTrap, seenDuring)
	require.Equal(t, ModeNormal, tb.Mode())
	require.Equal(t, int64(84), result)
}
