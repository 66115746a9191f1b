package vb2

import "testing"

func TestPacerStamp(t *testing.T) {
	tests := []struct {
		name  string
		nows  []int64
		wants []int64
	}{
		{
			name:  "first frame is due immediately",
			nows:  []int64{1000},
			wants: []int64{1000},
		},
		{
			name:  "burst at one instant shares a target",
			nows:  []int64{500, 500, 500, 500},
			wants: []int64{500, 500, 500, 500},
		},
		{
			name:  "target snaps forward when consumer falls behind",
			nows:  []int64{100, 200, 900},
			wants: []int64{100, 200, 900},
		},
		{
			name:  "time going backwards keeps the previous target",
			nows:  []int64{300, 250},
			wants: []int64{300, 300},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Pacer
			p.Reset()
			for i, now := range tt.nows {
				if got := p.Stamp(now); got != tt.wants[i] {
					t.Errorf("Stamp(%d) #%d = %d, want %d", now, i, got, tt.wants[i])
				}
			}
		})
	}
}

func TestPacerResetRestartsStream(t *testing.T) {
	var p Pacer
	p.Reset()
	p.Stamp(5000)

	p.Reset()
	if got := p.Stamp(10); got != 10 {
		t.Errorf("after Reset, Stamp(10) = %d, want 10", got)
	}
	if p.NextTime() != 10 {
		t.Errorf("NextTime() = %d, want 10", p.NextTime())
	}
}

func TestPacerFutureTargetHeld(t *testing.T) {
	var p Pacer
	p.Reset()
	p.Stamp(0)
	p.nextTime = 1_000_000

	if got := p.Stamp(10); got != 1_000_000 {
		t.Errorf("Stamp(10) = %d, want the pending target 1000000", got)
	}
}
