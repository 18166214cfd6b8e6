package control

import (
	"errors"
	"testing"
)

func TestTransitionSeconds(t *testing.T) {
	tr := Transition{Index: 12288, Order: 3, FinalOrder: 3, Count: 1}
	if got := tr.Seconds(4096); got != 3 {
		t.Fatalf("Seconds = %v, want 3", got)
	}
	if got := tr.Seconds(0); got != 0 {
		t.Fatalf("Seconds at zero rate = %v, want 0", got)
	}
}

func TestTransitionValidate(t *testing.T) {
	tests := []struct {
		name string
		tr   Transition
		ok   bool
	}{
		{"switch to third order", Transition{Index: 10, Order: 3, FinalOrder: 3, Count: 1}, true},
		{"switched back", Transition{Index: 10, Order: 3, FinalOrder: 2, Count: 2}, true},
		{"bad order", Transition{Order: 4, FinalOrder: 3, Count: 1}, false},
		{"bad final order", Transition{Order: 3, FinalOrder: 0, Count: 1}, false},
		{"nothing observed", Transition{Order: 3, FinalOrder: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tr.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrTransition) {
				t.Fatalf("err = %v, want ErrTransition", err)
			}
		})
	}
}
