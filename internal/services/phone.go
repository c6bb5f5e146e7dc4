package services

import "strings"

// NormalizePhone validates a Safaricom number and returns it in 254 form.
// Accepted inputs: 0XXXXXXXXX (10 chars, leading 0 replaced with 254) and
// 254XXXXXXXXX (12 chars, returned as-is). Anything else is ErrInvalidPhone.
func NormalizePhone(raw string) (string, error) {
	phone := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(phone, "254") && len(phone) == 12:
		return phone, nil
	case strings.HasPrefix(phone, "0") && len(phone) == 10:
		return "254" + phone[1:], nil
	default:
		return "", ErrInvalidPhone
	}
}
