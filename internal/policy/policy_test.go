package policy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsOutOfRange(t *testing.T) {
	for _, level := range []int{-1, 11, 100} {
		_, err := New(level)
		assert.ErrorIs(t, err, ErrLevelOutOfRange, "level %d", level)
	}
}

func TestAdmitsMatchesLinearCutoff(t *testing.T) {
	for level := MinLevel; level <= MaxLevel; level++ {
		p, err := New(level)
		require.NoError(t, err)

		cutoff := float64(100 - 10*level)
		for score := 0.0; score <= 100; score += 2.5 {
			assert.Equal(t, score <= cutoff, p.Admits(score),
				"level %d score %.1f", level, score)
		}
	}
}

func TestAdmitsBoundary(t *testing.T) {
	p, err := New(5)
	require.NoError(t, err)

	// Cutoff at level 5 is 50; the boundary itself admits.
	assert.Equal(t, 50.0, p.Cutoff())
	assert.True(t, p.Admits(50))
	assert.False(t, p.Admits(50.001))
}

func TestLevelExtremes(t *testing.T) {
	p, err := New(0)
	require.NoError(t, err)
	assert.True(t, p.Admits(100))

	require.NoError(t, p.SetLevel(10))
	assert.True(t, p.Admits(0))
	assert.False(t, p.Admits(0.5))
}

func TestSetLevelRejectsOutOfRange(t *testing.T) {
	p, err := New(3)
	require.NoError(t, err)

	assert.ErrorIs(t, p.SetLevel(-1), ErrLevelOutOfRange)
	assert.ErrorIs(t, p.SetLevel(11), ErrLevelOutOfRange)
	// State unchanged after rejected writes.
	assert.Equal(t, 3, p.Level())
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	p, err := New(0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = p.SetLevel(n % (MaxLevel + 1))
		}(i)
		go func() {
			defer wg.Done()
			_ = p.Admits(42)
		}()
	}
	wg.Wait()

	level := p.Level()
	assert.GreaterOrEqual(t, level, MinLevel)
	assert.LessOrEqual(t, level, MaxLevel)
}
