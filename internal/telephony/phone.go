package telephony

import "strings"

// NormalizePhone converts free-form phone input to E.164 form: formatting is
// stripped, 11 digits starting with 1 gain a "+", bare 10-digit national
// numbers gain "+1", and anything else keeps its digits behind a "+".
func NormalizePhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return ""
	}

	switch {
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	case len(d) == 10:
		return "+1" + d
	default:
		return "+" + d
	}
}
