// Package movement decides whether people moved between two consecutive frames.
package movement

import (
	"math"

	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/samber/lo"
)

// DefaultThreshold is the centroid displacement, in frame pixels, that counts as movement.
const DefaultThreshold = 40.0

// Evaluate reports movement when some current box is farther than threshold from
// every previous box. An empty previous or current set is never movement, so the
// first frame of a session and an emptied scene do not trigger.
//
// The test is one-sided nearest-neighbour without identity tracking: a person who
// leaves while another enters at roughly the same spot is not seen as movement.
func Evaluate(prev, curr []models.PersonBox, threshold float64) bool {
	if len(prev) == 0 || len(curr) == 0 {
		return false
	}

	return lo.SomeBy(curr, func(c models.PersonBox) bool {
		return nearest(c, prev) > threshold
	})
}

func nearest(box models.PersonBox, others []models.PersonBox) float64 {
	best := math.Inf(1)
	for _, o := range others {
		if d := distance(box, o); d < best {
			best = d
		}
	}
	return best
}

func distance(a, b models.PersonBox) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Decision is the outcome of one evaluation step.
type Decision struct {
	Moved bool
	Boxes []models.PersonBox
}

// Evaluator remembers the previous frame's boxes. Not safe for concurrent use;
// a session worker owns it.
type Evaluator struct {
	threshold float64
	prev      []models.PersonBox
}

func NewEvaluator(threshold float64) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Evaluator{threshold: threshold}
}

// Step compares curr against the previous set and makes curr the new previous.
func (e *Evaluator) Step(curr []models.PersonBox) Decision {
	moved := Evaluate(e.prev, curr, e.threshold)
	e.prev = curr
	return Decision{Moved: moved, Boxes: curr}
}
