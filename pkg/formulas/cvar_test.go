package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCVaR(t *testing.T) {
	tests := []struct {
		name        string
		returns     []float64
		confidence  float64
		want        float64
		description string
	}{
		{
			name:        "ten returns at 95% uses the single worst",
			returns:     []float64{-0.10, -0.05, -0.02, 0.0, 0.02, 0.05, 0.10, 0.15, 0.20, 0.25},
			confidence:  0.95,
			want:        -0.10,
			description: "ceil(10*0.05) = 1 return in the tail",
		},
		{
			name:        "forty returns at 95% averages two",
			returns:     append([]float64{-0.30, -0.10}, make([]float64, 38)...),
			confidence:  0.95,
			want:        -0.20,
			description: "ceil(40*0.05) = 2 returns in the tail",
		},
		{
			name:        "single return",
			returns:     []float64{-0.10},
			confidence:  0.95,
			want:        -0.10,
			description: "CVaR with single return should be that return",
		},
		{
			name:        "empty returns",
			returns:     []float64{},
			confidence:  0.95,
			want:        0.0,
			description: "CVaR with no returns should be 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CalculateCVaR(tt.returns, tt.confidence), 1e-12, tt.description)
		})
	}
}

func TestCalculateCVaR_DoesNotMutateInput(t *testing.T) {
	returns := []float64{0.3, -0.2, 0.1}
	CalculateCVaR(returns, 0.95)
	assert.Equal(t, []float64{0.3, -0.2, 0.1}, returns)
}

func TestTailLoss(t *testing.T) {
	returns := []float64{0.01, -0.04, 0.02, 0.03}
	assert.InDelta(t, 0.04, TailLoss(returns, 0.95), 1e-12)
}

func TestTailCount(t *testing.T) {
	assert.Equal(t, 1, TailCount(10, 0.95))
	assert.Equal(t, 1, TailCount(20, 0.95))
	assert.Equal(t, 2, TailCount(21, 0.95))
	assert.Equal(t, 2, TailCount(24, 0.95))
	assert.Equal(t, 3, TailCount(60, 0.95))
	assert.Equal(t, 5, TailCount(5, 0.0))
}
