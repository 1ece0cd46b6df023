package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefCountLifecycle(t *testing.T) {
	var refs RefCount
	require.Equal(t, 0, refs.Count())

	refs.Init()
	refs.Retain()
	refs.Retain()
	require.Equal(t, 3, refs.Count())

	require.False(t, refs.Release())
	require.False(t, refs.Release())
	require.True(t, refs.Release())
	require.Equal(t, 0, refs.Count())
}

func TestRefCountRetainAfterFinalReleasePanics(t *testing.T) {
	var refs RefCount
	refs.Init()
	require.True(t, refs.Release())

	require.Panics(t, func() {
		refs.Retain()
	})
}

func TestRefCountOverReleasePanics(t *testing.T) {
	var refs RefCount
	refs.Init()
	require.True(t, refs.Release())

	require.Panics(t, func() {
		refs.Release()
	})
}

func TestRefCountConcurrent(t *testing.T) {
	var refs RefCount
	refs.Init()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				refs.Retain()
				refs.Release()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, refs.Count())
	require.True(t, refs.Release())
}
