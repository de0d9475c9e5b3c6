package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fptr(v float64) *float64 { return &v }

func TestShouldRunReasoning_DecisionTable(t *testing.T) {
	cases := []struct {
		name        string
		movementPct *float64
		newsCount   int
		threshold   float64
		wantTrigger bool
		wantReason  string
	}{
		{"price change only", fptr(0.6), 0, 0.5, true, ReasonPriceChange},
		{"news only", fptr(0.2), 1, 0.5, true, ReasonNewsUpdate},
		{"neither", fptr(0.2), 0, 0.5, false, ReasonNone},
		{"both", fptr(0.6), 1, 0.5, true, ReasonPriceChangeAndNews},
		{"negative movement beyond threshold", fptr(-0.7), 0, 0.5, true, ReasonPriceChange},
		{"exactly at threshold", fptr(0.5), 0, 0.5, true, ReasonPriceChange},
		{"no baseline, no news", nil, 0, 0.5, false, ReasonNone},
		{"no baseline, fresh news", nil, 3, 0.5, true, ReasonNewsUpdate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := ShouldRunReasoning(tc.movementPct, tc.newsCount, tc.threshold)
			assert.Equal(t, tc.wantTrigger, got)
			assert.Equal(t, tc.wantReason, reason)
		})
	}
}

func TestMovementPct(t *testing.T) {
	if got := MovementPct(100, nil); got != nil {
		t.Fatalf("want nil without previous price, got %v", *got)
	}
	if got := MovementPct(100, fptr(0)); got != nil {
		t.Fatalf("want nil for zero previous price, got %v", *got)
	}
	got := MovementPct(101, fptr(100))
	if got == nil || *got != 1.0 {
		t.Fatalf("want 1.0, got %v", got)
	}
	got = MovementPct(100.3333, fptr(100))
	assert.InDelta(t, 0.3333, *got, 1e-9)
}

func TestMovementDelta(t *testing.T) {
	if got := MovementDelta(100, nil); got != nil {
		t.Fatalf("want nil without previous snapshot, got %v", *got)
	}
	got := MovementDelta(101.23456, fptr(100))
	if got == nil {
		t.Fatal("want delta, got nil")
	}
	assert.Equal(t, 1.2346, *got)
}
