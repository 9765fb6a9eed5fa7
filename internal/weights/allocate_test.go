package weights

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocateProportionalWhenUnclamped(t *testing.T) {
	w := allocate([]float64{1, 2, 1}, 1, 0, 1)
	assert.InDelta(t, 0.25, w[0], 1e-9)
	assert.InDelta(t, 0.5, w[1], 1e-9)
	assert.InDelta(t, 0.25, w[2], 1e-9)
}

func TestAllocateRespectsPartialMass(t *testing.T) {
	w := allocate([]float64{3, 1}, 0.4, 0.05, 0.35)
	assert.InDelta(t, 0.4, w[0]+w[1], 1e-12)
	assert.InDelta(t, 0.3, w[0], 1e-9)
	assert.InDelta(t, 0.1, w[1], 1e-9)
}

func TestAllocateAllAtLowerBound(t *testing.T) {
	w := allocate([]float64{5, 1, 1, 1}, 0.4, 0.1, 0.9)
	for _, v := range w {
		assert.InDelta(t, 0.1, v, 1e-9)
	}
}

func TestAllocateEmpty(t *testing.T) {
	assert.Empty(t, allocate(nil, 1, 0, 1))
}
