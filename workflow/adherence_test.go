package workflow

import "testing"

func TestAdherenceRate(t *testing.T) {
	cases := []struct {
		taken  int64
		missed int64
		want   float64
	}{
		{0, 0, 0.0},
		{3, 1, 75.0},
		{0, 5, 0.0},
		{5, 0, 100.0},
		{1, 3, 25.0},
	}
	for _, c := range cases {
		if got := AdherenceRate(c.taken, c.missed); got != c.want {
			t.Errorf("AdherenceRate(%d, %d) = %v, want %v", c.taken, c.missed, got, c.want)
		}
	}
}
