package services

import (
	"strings"
	"unicode"
)

// NormalizePhoneNumber converts Kenyan mobile numbers to the 2547XXXXXXXX /
// 2541XXXXXXXX form the gateway expects. It returns "" when the input cannot
// be a Kenyan mobile number.
func NormalizePhoneNumber(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		if r == ' ' || r == '-' {
			return -1
		}
		return 'x'
	}, phone)
	if strings.ContainsRune(digits, 'x') {
		return ""
	}

	switch {
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		digits = "254" + digits[1:]
	case (strings.HasPrefix(digits, "7") || strings.HasPrefix(digits, "1")) && len(digits) == 9:
		digits = "254" + digits
	}

	if len(digits) != 12 || !strings.HasPrefix(digits, "254") {
		return ""
	}
	return digits
}
