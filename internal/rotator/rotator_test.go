package rotator_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"docmind/internal/rotator"
)

func configs() []rotator.Config {
	return []rotator.Config{
		{Provider: "anthropic", Model: "claude"},
		{Provider: "openai", Model: "gpt"},
		{Provider: "google", Model: "gemini"},
	}
}

func TestNextHoldsCurrentConfigForCallsPerModel(t *testing.T) {
	r := rotator.New(configs(), 2)

	require.Equal(t, "anthropic", r.Next().Provider)
	require.Equal(t, "anthropic", r.Next().Provider)
	require.Equal(t, "openai", r.Next().Provider)
	require.Equal(t, "openai", r.Next().Provider)
	require.Equal(t, "google", r.Next().Provider)
}

func TestNextWrapsModuloListLength(t *testing.T) {
	r := rotator.New(configs(), 1)

	require.Equal(t, "anthropic", r.Next().Provider)
	require.Equal(t, "openai", r.Next().Provider)
	require.Equal(t, "google", r.Next().Provider)
	require.Equal(t, "anthropic", r.Next().Provider)
}

func TestForceRotateAdvancesImmediatelyAndResetsCounter(t *testing.T) {
	r := rotator.New(configs(), 5)

	require.Equal(t, "anthropic", r.Next().Provider)
	r.ForceRotate()
	require.Equal(t, "openai", r.Next().Provider)

	for i := 0; i < 4; i++ {
		r.Next()
	}
	require.Equal(t, "google", r.Next().Provider)
}

func TestConcurrentNextIsRaceFree(t *testing.T) {
	r := rotator.New(configs(), 3)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Next()
		}()
	}
	wg.Wait()
}
