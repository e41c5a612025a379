package phone

import "testing"

func TestNormalizeE164ForRegion(t *testing.T) {
	cases := []struct {
		input  string
		region string
		want   string
	}{
		{"030 123456", "DE", "+4930123456"},
		{"+44 121 234 5678", "DE", "+441212345678"},
		{"not a number", "DE", "not a number"},
		{"  ", "DE", ""},
	}
	for _, tc := range cases {
		if got := NormalizeE164ForRegion(tc.input, tc.region); got != tc.want {
			t.Errorf("NormalizeE164ForRegion(%q, %q) = %q, want %q", tc.input, tc.region, got, tc.want)
		}
	}
}

func TestParseE164RejectsInvalid(t *testing.T) {
	if _, err := ParseE164("12", "DE"); err == nil {
		t.Fatalf("expected short number to be rejected")
	}
}
