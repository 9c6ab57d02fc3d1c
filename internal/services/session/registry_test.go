package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReusesTrackerPerSymbol(t *testing.T) {
	reg := NewRegistry(newFakeStore(), clock, nil, nil)
	ctx := context.Background()

	var first, second *Tracker
	require.NoError(t, reg.With(ctx, "btcusdt", func(tr *Tracker) error { first = tr; return nil }))
	require.NoError(t, reg.With(ctx, "BTCUSDT", func(tr *Tracker) error { second = tr; return nil }))
	require.NoError(t, reg.With(ctx, "ethusdt", func(*Tracker) error { return nil }))

	assert.Same(t, first, second)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, reg.Symbols())
}

func TestRegistrySerializesUpdates(t *testing.T) {
	store := newFakeStore()
	reg := NewRegistry(store, clock, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.With(ctx, "BTCUSDT", func(tr *Tracker) error {
				ts := tr.lastClose.Add(15 * time.Minute)
				if tr.lastClose.IsZero() {
					ts = at(8, 9, 0)
				}
				_, err := tr.Update(ctx, hl(ts, 101, 99), true)
				return err
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, store.saves)
}

func TestRegistryRetriesFailedLoad(t *testing.T) {
	store := newFakeStore()
	reg := NewRegistry(store, clock, nil, nil)
	ctx := context.Background()
	require.NoError(t, reg.With(ctx, "BTCUSDT", func(tr *Tracker) error {
		feed(t, tr, fullDay(8))
		return nil
	}))

	reg = NewRegistry(store, clock, nil, nil)
	store.loadErr = errors.New("redis: connection refused")
	called := false
	err := reg.With(ctx, "BTCUSDT", func(*Tracker) error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called)

	store.loadErr = nil
	require.NoError(t, reg.With(ctx, "BTCUSDT", func(tr *Tracker) error {
		snap, err := tr.Update(ctx, hl(at(9, 0, 0), 100, 99), true)
		require.NoError(t, err)
		require.NotNil(t, snap.PDH)
		assert.Equal(t, 110.0, *snap.PDH, "state survived the failed load")
		return nil
	}))
}
