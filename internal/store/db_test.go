package store

import "testing"

func TestPoolLimits(t *testing.T) {
	tests := []struct {
		maxConns int
		open     int
		idle     int
	}{
		{maxConns: 40, open: 40, idle: 20},
		{maxConns: 5, open: 5, idle: 3},
		{maxConns: 1, open: 1, idle: 1},
		{maxConns: 0, open: 25, idle: 13},
		{maxConns: -3, open: 25, idle: 13},
	}
	for _, tt := range tests {
		open, idle := poolLimits(tt.maxConns)
		if open != tt.open || idle != tt.idle {
			t.Errorf("poolLimits(%d) = (%d, %d), want (%d, %d)", tt.maxConns, open, idle, tt.open, tt.idle)
		}
	}
}
