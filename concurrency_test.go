package vipsfit

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConcurrency(t *testing.T) {
	n, err := parseConcurrency("")
	require.NoError(t, err)
	assert.Nil(t, n)

	n, err = parseConcurrency(" 4 ")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, 4, *n)

	for _, v := range []string{"four", "1.5", "0", "-2"} {
		_, err := parseConcurrency(v)
		assert.Error(t, err, v)
	}
}

func TestConcurrencyFromEnv(t *testing.T) {
	t.Setenv(EnvConcurrency, "3")
	n, err := ConcurrencyFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 3, *n)

	t.Setenv(EnvConcurrency, "lots")
	_, err = ConcurrencyFromEnv()
	assert.ErrorContains(t, err, EnvConcurrency)
}

func TestConcurrencyController(t *testing.T) {
	t.Run("defaults to the cpu count", func(t *testing.T) {
		e := newFakeEngine(1, 1, FormatPng)
		c := NewConcurrencyController(e)
		c.Init(nil)
		assert.Equal(t, runtime.NumCPU(), c.Get())
		assert.Equal(t, runtime.NumCPU(), e.concurrency)
	})

	t.Run("init runs once", func(t *testing.T) {
		e := newFakeEngine(1, 1, FormatPng)
		c := NewConcurrencyController(e)
		two, five := 2, 5
		c.Init(&two)
		c.Init(&five)
		assert.Equal(t, 2, c.Get())
		assert.Equal(t, 2, e.concurrency)
	})

	t.Run("set at any time", func(t *testing.T) {
		e := newFakeEngine(1, 1, FormatPng)
		c := NewConcurrencyController(e)
		c.Set(7)
		assert.Equal(t, 7, c.Get())

		// a later Init does not undo an explicit Set
		one := 1
		c.Init(&one)
		assert.Equal(t, 7, e.concurrency)

		c.Set(0)
		assert.Equal(t, runtime.NumCPU(), c.Get())
	})
}

func TestConcurrencySharedByEngine(t *testing.T) {
	e := newFakeEngine(1, 1, FormatPng)
	two, three := 2, 3

	p1, err := NewPipeline(PipelineConfig{Engine: e, Concurrency: &two})
	require.NoError(t, err)
	p1.SetConcurrency(5)

	p2, err := NewPipeline(PipelineConfig{Engine: e, Concurrency: &three})
	require.NoError(t, err)
	assert.Equal(t, 5, p2.Concurrency())
	assert.Equal(t, 5, e.concurrency)

	p2.SetConcurrency(4)
	assert.Equal(t, 4, p1.Concurrency())

	other := newFakeEngine(1, 1, FormatPng)
	p3, err := NewPipeline(PipelineConfig{Engine: other, Concurrency: &three})
	require.NoError(t, err)
	assert.Equal(t, 3, p3.Concurrency())
	assert.Equal(t, 4, e.concurrency)
}
