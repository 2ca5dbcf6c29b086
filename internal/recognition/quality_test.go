package recognition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombineQuality(t *testing.T) {
	// Large sharp face at mid-gray exposure maxes the score.
	assert.InDelta(t, 1.0, combineQuality(10000, 500, 128), 1e-9)

	// Area and sharpness contributions saturate at their references.
	assert.InDelta(t, 1.0, combineQuality(40000, 2000, 128), 1e-9)

	// Quarter area contributes a quarter of the area weight.
	assert.InDelta(t, 0.4*0.25+0.4+0.2, combineQuality(2500, 500, 128), 1e-9)

	// Fully mis-exposed capture loses the exposure share.
	assert.InDelta(t, 0.8, combineQuality(10000, 500, 0), 1e-9)
	assert.InDelta(t, 0.8, combineQuality(10000, 500, 255), 0.01)

	// Tiny blurry dark crop scores near zero.
	assert.Less(t, combineQuality(100, 5, 10), 0.1)
}

func TestAdaptiveTolerance(t *testing.T) {
	base := 0.6

	assert.InDelta(t, 0.7, adaptiveTolerance(base, 0.4), 1e-9)
	assert.InDelta(t, 0.65, adaptiveTolerance(base, 0.6), 1e-9)
	assert.InDelta(t, 0.6, adaptiveTolerance(base, 0.8), 1e-9)

	// Widening is capped.
	assert.InDelta(t, 0.75, adaptiveTolerance(0.72, 0.4), 1e-9)
	assert.InDelta(t, 0.70, adaptiveTolerance(0.68, 0.6), 1e-9)
}

func TestMatchConfidence(t *testing.T) {
	// Perfect match at good quality.
	assert.InDelta(t, 1.0, matchConfidence(0, 0.6, 0.9), 1e-9)

	// Low quality discounts the confidence.
	assert.InDelta(t, 0.9, matchConfidence(0, 0.6, 0.5), 1e-9)

	// Distance at or past tolerance yields zero.
	assert.InDelta(t, 0.0, matchConfidence(0.6, 0.6, 0.9), 1e-9)
	assert.InDelta(t, 0.0, matchConfidence(1.2, 0.6, 0.9), 1e-9)

	// Halfway inside tolerance.
	assert.InDelta(t, 0.5, matchConfidence(0.3, 0.6, 0.9), 1e-9)
}

func TestEuclideanDistance(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	assert.InDelta(t, 1.4142, euclideanDistance(a, b), 0.001)
	assert.InDelta(t, 0.0, euclideanDistance(a, a), 1e-9)
}
