// Package privacy masks worker PII before it reaches logs or events.
package privacy

import "strings"

// MaskPhone keeps the country prefix and the last four digits of a phone
// number and replaces the rest with '*' (e.g. "+919876543210" -> "+91******3210").
//
// Returns "unknown" for empty input. Numbers with fewer than six digits are
// fully masked.
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "unknown"
	}

	prefix := ""
	digits := phone
	if strings.HasPrefix(phone, "+") {
		prefix = "+"
		digits = phone[1:]
	}
	if len(digits) < 6 {
		return prefix + strings.Repeat("*", len(digits))
	}

	head := 0
	if prefix != "" {
		head = min(2, len(digits)-4)
	}
	return prefix + digits[:head] + strings.Repeat("*", len(digits)-head-4) + digits[len(digits)-4:]
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "unknown"
	}
	return email[:1] + "***" + email[at:]
}
