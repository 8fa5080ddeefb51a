package proctor

import "testing"

func TestScoreContributions(t *testing.T) {
	cases := []struct {
		name string
		sig  Signals
		want int
	}{
		{"clean heartbeat", Signals{Faces: 1, FacePresent: true}, 0},
		{"face absent", Signals{FacePresent: false}, 1},
		{"multiple faces", Signals{Faces: 2, FacePresent: true, MultipleFaces: true}, 2},
		{"tab hidden", Signals{Faces: 1, FacePresent: true, TabHidden: true}, 1},
		{"away over threshold", Signals{Faces: 1, FacePresent: true, AwaySeconds: 6}, 1},
		{"away exactly at threshold", Signals{Faces: 1, FacePresent: true, AwaySeconds: 5}, 0},
		{"all signals", Signals{FacePresent: false, MultipleFaces: true, TabHidden: true, AwaySeconds: 10}, 5},
		{"zero value telemetry", Signals{}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.sig, DefaultAwayThreshold); got != tc.want {
				t.Fatalf("Score(%+v) = %d, want %d", tc.sig, got, tc.want)
			}
		})
	}
}

func TestScoreCustomThreshold(t *testing.T) {
	sig := Signals{Faces: 1, FacePresent: true, AwaySeconds: 3}
	if got := Score(sig, 2); got != 1 {
		t.Fatalf("Score with threshold 2 = %d, want 1", got)
	}
	if got := Score(sig, 5); got != 0 {
		t.Fatalf("Score with threshold 5 = %d, want 0", got)
	}
}

func TestScoreBounds(t *testing.T) {
	for faces := 0; faces <= 3; faces++ {
		for _, present := range []bool{true, false} {
			for _, multi := range []bool{true, false} {
				for _, hidden := range []bool{true, false} {
					for _, away := range []float64{0, 4, 100} {
						sig := Signals{Faces: faces, FacePresent: present, MultipleFaces: multi, TabHidden: hidden, AwaySeconds: away}
						got := Score(sig, DefaultAwayThreshold)
						if got < 0 || got > 5 {
							t.Fatalf("Score(%+v) = %d, out of [0,5]", sig, got)
						}
					}
				}
			}
		}
	}
}
