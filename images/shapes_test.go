package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		r1       Box
		r2       Box
		expected float32
	}{
		{
			name:     "Identical boxes",
			r1:       Box{0, 0, 100, 100},
			r2:       Box{0, 0, 100, 100},
			expected: 1.0,
		},
		{
			name:     "No overlap",
			r1:       Box{0, 0, 100, 100},
			r2:       Box{200, 200, 100, 100},
			expected: 0.0,
		},
		{
			name:     "Touching edges",
			r1:       Box{0, 0, 100, 100},
			r2:       Box{100, 0, 100, 100},
			expected: 0.0,
		},
		{
			name:     "Half overlap",
			r1:       Box{0, 0, 100, 100},
			r2:       Box{50, 50, 100, 100},
			expected: 0.142857, // 2500 / 17500
		},
		{
			name:     "One inside other",
			r1:       Box{0, 0, 100, 100},
			r2:       Box{25, 25, 50, 50},
			expected: 0.25,
		},
		{
			name:     "Degenerate box",
			r1:       Box{0, 0, 0, 0},
			r2:       Box{0, 0, 0, 0},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CalculateIoU(tt.r1, tt.r2), 0.001)
			assert.InDelta(t, tt.expected, CalculateIoU(tt.r2, tt.r1), 0.001, "IoU should be symmetric")
		})
	}
}

func TestBoxFromCenter(t *testing.T) {
	b := BoxFromCenter(200, 140, 30, 40)
	assert.Equal(t, Box{X: 185, Y: 120, W: 30, H: 40}, b)

	cx, cy := b.Center()
	assert.Equal(t, float32(200), cx)
	assert.Equal(t, float32(140), cy)
}
