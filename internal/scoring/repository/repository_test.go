package repository

import "testing"

func TestBucketLowerBound(t *testing.T) {
	cases := []struct {
		score int
		want  int
	}{
		{0, 0},
		{9, 0},
		{10, 10},
		{15, 10},
		{99, 90},
		{100, 100},
		{-1, -10},
		{-9, -10},
		{-10, -10},
		{-11, -20},
		{-100, -100},
	}

	for _, tc := range cases {
		if got := bucketLowerBound(tc.score); got != tc.want {
			t.Errorf("bucketLowerBound(%d) = %d, want %d", tc.score, got, tc.want)
		}
	}
}
