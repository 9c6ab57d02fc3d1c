package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindPeaks(t *testing.T) {
	tests := []struct {
		name     string
		xs       []float64
		distance int
		want     []int
	}{
		{"single", []float64{1, 3, 1}, 1, []int{1}},
		{"edges excluded", []float64{5, 1, 1, 5}, 1, nil},
		{"plateau midpoint", []float64{0, 2, 2, 2, 0}, 1, []int{2}},
		{"even plateau rounds down", []float64{0, 2, 2, 0}, 1, []int{1}},
		{"distance keeps higher", []float64{0, 3, 0, 5, 0, 4, 0}, 3, []int{3}},
		{"distance satisfied", []float64{0, 3, 0, 0, 5, 0}, 3, []int{1, 4}},
		{"shoulder not a peak", []float64{0, 2, 2, 3, 0}, 1, []int{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindPeaks(tt.xs, tt.distance)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindValleys(t *testing.T) {
	assert.Equal(t, []int{2}, FindValleys([]float64{5, 4, 1, 4, 5}, 1))
}
