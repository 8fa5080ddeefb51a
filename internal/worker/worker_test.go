package worker

import "testing"

func TestThresholdBadges(t *testing.T) {
	cases := []struct {
		activity string
		count    int
		want     []string
	}{
		{"post", 0, nil},
		{"post", 1, []string{BadgeFirstPost}},
		{"post", 9, []string{BadgeFirstPost}},
		{"post", 10, []string{BadgeFirstPost, BadgeActiveDiscusser}},
		{"submission", 0, nil},
		{"submission", 1, []string{BadgeFirstSubmission}},
		{"submission", 5, []string{BadgeFirstSubmission}},
		{"unknown", 100, nil},
	}
	for _, tc := range cases {
		got := thresholdBadges(tc.activity, tc.count)
		if len(got) != len(tc.want) {
			t.Fatalf("thresholdBadges(%q, %d) = %v, want %v", tc.activity, tc.count, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("thresholdBadges(%q, %d) = %v, want %v", tc.activity, tc.count, got, tc.want)
			}
		}
	}
}
