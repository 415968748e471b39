package movement

import (
	"testing"

	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/stretchr/testify/assert"
)

func boxes(points ...float64) []models.PersonBox {
	out := make([]models.PersonBox, 0, len(points)/2)
	for i := 0; i+1 < len(points); i += 2 {
		out = append(out, models.PersonBox{X: points[i], Y: points[i+1]})
	}
	return out
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		prev []models.PersonBox
		curr []models.PersonBox
		want bool
	}{
		{"empty previous", nil, boxes(10, 10), false},
		{"empty current", boxes(0, 0), nil, false},
		{"both empty", nil, nil, false},
		{"far move", boxes(0, 0), boxes(100, 0), true},
		{"small move", boxes(0, 0), boxes(30, 0), false},
		{"exactly threshold", boxes(0, 0), boxes(40, 0), false},
		{"just over threshold", boxes(0, 0), boxes(40.01, 0), true},
		{"diagonal under", boxes(0, 0), boxes(28, 28), false},
		{"diagonal over", boxes(0, 0), boxes(29, 29), true},
		{"one of two moved", boxes(0, 0, 200, 200), boxes(5, 5, 300, 200), true},
		{"nearest neighbour wins", boxes(0, 0, 100, 0), boxes(95, 0), false},
		{"person left, nobody moved", boxes(0, 0, 100, 100), boxes(0, 0), false},
		{"new person far away", boxes(0, 0), boxes(0, 0, 500, 500), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.prev, tt.curr, DefaultThreshold))
		})
	}
}

func TestEvaluateSwapAtSameSpotIsNotMovement(t *testing.T) {
	// different people at nearly the same position look identical to a proximity test
	assert.False(t, Evaluate(boxes(50, 50), boxes(55, 52), DefaultThreshold))
}

func TestEvaluatorStepCarriesPreviousSet(t *testing.T) {
	e := NewEvaluator(40)

	d := e.Step(boxes(10, 10))
	assert.False(t, d.Moved, "first frame has no previous set")

	d = e.Step(boxes(100, 10))
	assert.True(t, d.Moved)
	assert.Equal(t, boxes(100, 10), d.Boxes)

	d = e.Step(boxes(110, 10))
	assert.False(t, d.Moved, "compared against the last frame, not the first")

	d = e.Step(nil)
	assert.False(t, d.Moved)

	d = e.Step(boxes(400, 400))
	assert.False(t, d.Moved, "emptied scene resets the comparison")
}

func TestNewEvaluatorDefaultsThreshold(t *testing.T) {
	e := NewEvaluator(0)
	assert.Equal(t, DefaultThreshold, e.threshold)
}
