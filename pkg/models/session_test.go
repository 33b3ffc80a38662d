package models

import "testing"

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to ScanStatus
		want     bool
	}{
		{StatusPending, StatusScanning, true},
		{StatusPending, StatusAnalyzing, true},
		{StatusScanning, StatusAnalyzing, true},
		{StatusAnalyzing, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusScanning, StatusFailed, true},
		{StatusAnalyzing, StatusFailed, true},
		{StatusScanning, StatusScanning, true},

		{StatusScanning, StatusPending, false},
		{StatusAnalyzing, StatusScanning, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusScanning, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusScanning, false},
		{StatusPending, ScanStatus("bogus"), false},
		{ScanStatus("bogus"), StatusScanning, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []ScanStatus{StatusPending, StatusScanning, StatusAnalyzing} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true", s)
		}
	}
	for _, s := range []ScanStatus{StatusCompleted, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false", s)
		}
	}
}

func TestStatusValid(t *testing.T) {
	if ScanStatus("running").Valid() {
		t.Error(`Valid("running") = true`)
	}
	if !StatusAnalyzing.Valid() {
		t.Error("Valid(analyzing) = false")
	}
}
