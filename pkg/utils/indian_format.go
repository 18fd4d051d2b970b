package utils

import (
	"fmt"
	"strings"
)

// Indian grouping sets commas after the last three digits and then in
// pairs: 12345678 prints as 1,23,45,678. Compact forms use lakh (1e5)
// and crore (1e7) units.

// FormatINR renders an amount as rupees with Indian grouping,
// e.g. ₹12,34,567.89.
func FormatINR(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	intPart, decPart, _ := strings.Cut(fmt.Sprintf("%.2f", amount), ".")
	return sign + "₹" + groupIndian(intPart) + "." + decPart
}

// FormatINRCompact renders an amount in the nearest Indian unit:
// ₹15 L, ₹19273.45 Cr, ₹1 L Cr.
func FormatINRCompact(amount float64) string {
	prefix := "₹"
	if amount < 0 {
		prefix = "-₹"
		amount = -amount
	}
	switch {
	case amount >= 1e12:
		return prefix + trimDecimals(amount/1e12) + " L Cr"
	case amount >= 1e7:
		return prefix + trimDecimals(amount/1e7) + " Cr"
	case amount >= 1e5:
		return prefix + trimDecimals(amount/1e5) + " L"
	case amount >= 1e3:
		return prefix + trimDecimals(amount/1e3) + " K"
	default:
		return prefix + fmt.Sprintf("%.2f", amount)
	}
}

// FormatPct renders a percentage with an explicit sign: +2.45%, -1.23%.
func FormatPct(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatVolume renders traded volume in lakh/crore units.
func FormatVolume(volume int64) string {
	v := float64(volume)
	switch {
	case v >= 1e7:
		return fmt.Sprintf("%.2f Cr", v/1e7)
	case v >= 1e5:
		return fmt.Sprintf("%.2f L", v/1e5)
	case v >= 1e3:
		return fmt.Sprintf("%.2f K", v/1e3)
	default:
		return fmt.Sprintf("%d", volume)
	}
}

// groupIndian inserts commas into a digit string: the last three digits
// form one group, everything before them splits into pairs.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	groups := []string{digits[len(digits)-3:]}
	rest := digits[:len(digits)-3]
	for len(rest) > 2 {
		groups = append(groups, rest[len(rest)-2:])
		rest = rest[:len(rest)-2]
	}
	groups = append(groups, rest)

	// Collected right to left.
	var b strings.Builder
	for i := len(groups) - 1; i >= 0; i-- {
		b.WriteString(groups[i])
		if i > 0 {
			b.WriteByte(',')
		}
	}
	return b.String()
}

// trimDecimals formats to two decimals and strips a trailing ".00" or
// final zero, so whole lakhs read as ₹15 L rather than ₹15.00 L.
func trimDecimals(n float64) string {
	s := fmt.Sprintf("%.2f", n)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
