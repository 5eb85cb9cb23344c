package detection

import (
	"math"
	"testing"
)

func TestBox_Center(t *testing.T) {
	tests := []struct {
		name    string
		box     Box
		expectX float64
		expectY float64
	}{
		{
			name:    "centered box",
			box:     Box{X1: 160, Y1: 90, X2: 480, Y2: 270},
			expectX: 320,
			expectY: 180,
		},
		{
			name:    "top left corner",
			box:     Box{X1: 0, Y1: 0, X2: 20, Y2: 40},
			expectX: 10,
			expectY: 20,
		},
		{
			name:    "degenerate point",
			box:     Box{X1: 5, Y1: 5, X2: 5, Y2: 5},
			expectX: 5,
			expectY: 5,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tc.box.Center()
			if x != tc.expectX {
				t.Errorf("Center X: got %.2f, want %.2f", x, tc.expectX)
			}
			if y != tc.expectY {
				t.Errorf("Center Y: got %.2f, want %.2f", y, tc.expectY)
			}
		})
	}
}

func TestBox_Area(t *testing.T) {
	tests := []struct {
		name   string
		box    Box
		expect float64
	}{
		{"regular", Box{X1: 10, Y1: 10, X2: 30, Y2: 60}, 1000},
		{"inverted is empty", Box{X1: 30, Y1: 10, X2: 10, Y2: 60}, 0},
		{"zero", Box{}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.box.Area(); got != tc.expect {
				t.Errorf("Area: got %.2f, want %.2f", got, tc.expect)
			}
		})
	}
}

func TestBox_IoU(t *testing.T) {
	a := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}

	if got := a.IoU(a); math.Abs(got-1) > 1e-9 {
		t.Errorf("IoU(self) = %v, want 1", got)
	}

	// Half overlap: inter 50, union 150
	b := Box{X1: 5, Y1: 0, X2: 15, Y2: 10}
	if got := a.IoU(b); math.Abs(got-1.0/3.0) > 1e-9 {
		t.Errorf("IoU(half) = %v, want 1/3", got)
	}

	c := Box{X1: 20, Y1: 20, X2: 30, Y2: 30}
	if got := a.IoU(c); got != 0 {
		t.Errorf("IoU(disjoint) = %v, want 0", got)
	}
}

func TestPersonsFilter(t *testing.T) {
	dets := []Detection{
		{ClassID: PersonClassID, Confidence: 0.9},
		{ClassID: PersonClassID, Confidence: 0.1},
		{ClassID: 2, Confidence: 0.95}, // car
		{ClassID: PersonClassID, Confidence: 0.2},
	}

	got := Filter(dets, Persons(0.2))
	if len(got) != 2 {
		t.Fatalf("Filter kept %d detections, want 2", len(got))
	}
	for _, d := range got {
		if d.ClassName() != "person" {
			t.Errorf("kept non-person %q", d.ClassName())
		}
	}

	if all := Filter(dets, nil); len(all) != len(dets) {
		t.Errorf("nil predicate kept %d, want %d", len(all), len(dets))
	}
}

func TestDetection_ClassName(t *testing.T) {
	if got := (Detection{ClassID: 0}).ClassName(); got != "person" {
		t.Errorf("ClassName(0) = %q", got)
	}
	if got := (Detection{ClassID: -1}).ClassName(); got != "" {
		t.Errorf("ClassName(-1) = %q, want empty", got)
	}
	if got := (Detection{ClassID: 999}).ClassName(); got != "" {
		t.Errorf("ClassName(999) = %q, want empty", got)
	}
}
