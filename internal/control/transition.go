package control

import (
	"errors"
	"fmt"
)

var ErrTransition = errors.New("invalid order transition")

// Transition records where in the sample stream a live loop-order change took
// effect. The capture tool writes it after the device applied the single
// SetOrder command and read the item counter of its debug probe.
type Transition struct {
	Index      uint64 `json:"index"`
	Order      int    `json:"order"`
	FinalOrder int    `json:"final_order"`
	Count      int    `json:"count"` // number of transitions observed
}

// Validate rejects records no loop could have produced.
func (t Transition) Validate() error {
	for _, o := range []int{t.Order, t.FinalOrder} {
		if o != 2 && o != 3 {
			return fmt.Errorf("%w: loop order %d", ErrTransition, o)
		}
	}
	if t.Count < 1 {
		return fmt.Errorf("%w: %d transitions observed", ErrTransition, t.Count)
	}
	return nil
}

// Seconds converts the transition index to simulation time.
func (t Transition) Seconds(sampleRate float64) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(t.Index) / sampleRate
}
