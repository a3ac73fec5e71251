package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
	"github.com/AaronLay10/DefusalEngine/internal/storage"
)

func TestStore_DeviceLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	facts := device.Facts{Serial: "AB3CD4", Indicators: map[string]bool{"CAR": true}}
	require.NoError(t, s.CreateDevice(ctx, storage.Device{ID: "bomb-1", Facts: facts}))
	assert.ErrorIs(t, s.CreateDevice(ctx, storage.Device{ID: "bomb-1"}), storage.ErrDeviceExists)

	// The store keeps its own copy of the facts.
	facts.Indicators["CAR"] = false
	got, err := s.GetDevice(ctx, "bomb-1")
	require.NoError(t, err)
	assert.True(t, got.Facts.Indicators["CAR"])
	assert.False(t, got.CreatedAt.IsZero())

	n, err := s.AddStrike(ctx, "bomb-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.AddStrike(ctx, "bomb-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := s.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Facts.Strikes)

	require.NoError(t, s.DeleteDevice(ctx, "bomb-1"))
	_, err = s.GetDevice(ctx, "bomb-1")
	assert.ErrorIs(t, err, storage.ErrDeviceNotFound)
	_, err = s.AddStrike(ctx, "bomb-1")
	assert.ErrorIs(t, err, storage.ErrDeviceNotFound)
}

func TestStore_Modules(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateDevice(ctx, storage.Device{ID: "bomb-1"}))

	err := s.PutModule(ctx, storage.Module{ID: "m", DeviceID: "nope"})
	assert.ErrorIs(t, err, storage.ErrDeviceNotFound)

	state := solver.Blob{"history": []any{map[string]any{"digit": 3.0}}}
	require.NoError(t, s.PutModule(ctx, storage.Module{ID: "mem", DeviceID: "bomb-1", Type: "memory", State: state}))
	require.NoError(t, s.PutModule(ctx, storage.Module{ID: "a-wires", DeviceID: "bomb-1", Type: "wires"}))

	// Mutating the caller's blob must not reach the store.
	state["history"].([]any)[0].(map[string]any)["digit"] = 9.0

	m, err := s.GetModule(ctx, "bomb-1", "mem")
	require.NoError(t, err)
	assert.Equal(t, 3.0, m.State["history"].([]any)[0].(map[string]any)["digit"])

	mods, err := s.ListModules(ctx, "bomb-1")
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Equal(t, "a-wires", mods[0].ID)

	_, err = s.GetModule(ctx, "bomb-1", "gone")
	assert.ErrorIs(t, err, storage.ErrModuleNotFound)

	require.NoError(t, s.DeleteModule(ctx, "bomb-1", "mem"))
	assert.ErrorIs(t, s.DeleteModule(ctx, "bomb-1", "mem"), storage.ErrModuleNotFound)

	_, err = s.ListModules(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrDeviceNotFound)
}
