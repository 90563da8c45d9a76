package domain

import "strings"

const (
	minCodeLength = 4
	maxCodeLength = 16
)

// NormalizeCode upper-cases a referral code and reports whether it is 4-16 ASCII letters or digits.
func NormalizeCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < minCodeLength || len(code) > maxCodeLength {
		return code, false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return code, false
		}
	}
	return code, true
}
