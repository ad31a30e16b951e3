package telephony

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"(555) 123-4567", "+15551234567"},
		{"15551234567", "+15551234567"},
		{"+1 555 123 4567", "+15551234567"},
		{"5551234567", "+15551234567"},
		{"445551234567", "+445551234567"},
		{"+44 20 7946 0958", "+442079460958"},
		{"1-555-123-4567", "+15551234567"},
		{"", ""},
		{"ext", ""},
	}

	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
