package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_Empty(t *testing.T) {
	w := NewWindow(3, 2)
	_, ok := w.Mean()
	assert.False(t, ok)
	assert.Equal(t, 0, w.Len())
}

func TestWindow_BasicAveraging(t *testing.T) {
	w := NewWindow(3, 2)
	w.Add([]float64{1, 10})
	w.Add([]float64{2, 20})

	mean, ok := w.Mean()
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{1.5, 15}, mean, 1e-12)
	assert.Equal(t, 2, w.Len())
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(3, 1)
	for i := 1; i <= 5; i++ {
		w.Add([]float64{float64(i)})
	}

	mean, ok := w.Mean()
	require.True(t, ok)
	// Only 3, 4 and 5 remain
	assert.InDelta(t, 4.0, mean[0], 1e-12)
	assert.Equal(t, 3, w.Len())
}

func TestWindow_SizeBelowOne(t *testing.T) {
	w := NewWindow(0, 1)
	assert.Equal(t, 1, w.Size())
	w.Add([]float64{7})
	w.Add([]float64{9})

	mean, ok := w.Mean()
	require.True(t, ok)
	assert.Equal(t, 9.0, mean[0])
}

func TestWindow_ShortAndLongReadings(t *testing.T) {
	w := NewWindow(2, 2)
	w.Add([]float64{4})
	w.Add([]float64{2, 6, 99})

	mean, _ := w.Mean()
	assert.InDeltaSlice(t, []float64{3, 3}, mean, 1e-12)
}

func TestWindow_Reset(t *testing.T) {
	w := NewWindow(2, 1)
	w.Add([]float64{5})
	w.Reset()

	_, ok := w.Mean()
	assert.False(t, ok)

	w.Add([]float64{1})
	mean, _ := w.Mean()
	assert.Equal(t, 1.0, mean[0])
}
