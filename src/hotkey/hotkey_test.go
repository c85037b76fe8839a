package hotkey

import (
	"sync/atomic"
	"testing"

	gohook "github.com/robotn/gohook"
	"github.com/stretchr/testify/require"
)

func newTestRegistrar() (*HookRegistrar, *int32) {
	var starts int32
	r := &HookRegistrar{
		start: func() chan gohook.Event {
			atomic.AddInt32(&starts, 1)
			return make(chan gohook.Event)
		},
		end: func() {},
	}
	return r, &starts
}

func press(r *HookRegistrar, codes ...uint16) {
	for _, c := range codes {
		r.handle(gohook.Event{Kind: gohook.KeyDown, Rawcode: c})
	}
}

func release(r *HookRegistrar, codes ...uint16) {
	for _, c := range codes {
		r.handle(gohook.Event{Kind: gohook.KeyUp, Rawcode: c})
	}
}

func TestHookRegistrarFiresOnFullCombination(t *testing.T) {
	r, _ := newTestRegistrar()
	var fired int32
	require.NoError(t, r.Register([]string{"ctrl", "alt", "s"}, func() { atomic.AddInt32(&fired, 1) }))

	press(r, 162, 164)
	require.Equal(t, int32(0), atomic.LoadInt32(&fired))
	press(r, 83)
	require.Equal(t, int32(1), atomic.LoadInt32(&fired))

	// State resets after firing; the next press needs the whole chord again.
	press(r, 83)
	require.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestHookRegistrarRightModifierAndRelease(t *testing.T) {
	r, _ := newTestRegistrar()
	var fired int32
	require.NoError(t, r.Register([]string{"ctrl", "s"}, func() { atomic.AddInt32(&fired, 1) }))

	press(r, 163)
	release(r, 163)
	press(r, 83)
	require.Equal(t, int32(0), atomic.LoadInt32(&fired))

	press(r, 163, 83)
	require.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestHookRegistrarSingleStreamAcrossRebinds(t *testing.T) {
	r, starts := newTestRegistrar()
	require.NoError(t, r.Register([]string{"ctrl", "a"}, func() {}))
	require.ErrorIs(t, r.Register([]string{"ctrl", "b"}, func() {}), errAlreadyRegistered)

	r.Unregister()
	var fired int32
	require.NoError(t, r.Register([]string{"ctrl", "b"}, func() { atomic.AddInt32(&fired, 1) }))
	require.Equal(t, int32(1), atomic.LoadInt32(starts))

	press(r, 162, 65)
	require.Equal(t, int32(0), atomic.LoadInt32(&fired), "old combo must not fire")
	release(r, 162, 65)
	press(r, 162, 66)
	require.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestHookRegistrarIgnoresEventsWhenUnregistered(t *testing.T) {
	r, _ := newTestRegistrar()
	var fired int32
	require.NoError(t, r.Register([]string{"ctrl", "s"}, func() { atomic.AddInt32(&fired, 1) }))
	r.Unregister()
	press(r, 162, 83)
	require.Equal(t, int32(0), atomic.LoadInt32(&fired))
}
