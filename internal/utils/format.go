package utils

import (
	"strconv"
	"strings"
)

// FormatPhone renders a Korean mobile number with dash grouping
// (010-1234-5678). Inputs that are too short or contain non-digits
// besides dashes are returned unchanged.
func FormatPhone(phone string) string {
	digits := strings.ReplaceAll(phone, "-", "")
	if len(digits) < 10 || len(digits) > 11 {
		return phone
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return phone
		}
	}
	mid := 3
	if len(digits) == 11 {
		mid = 4
	}
	return digits[:3] + "-" + digits[3:3+mid] + "-" + digits[3+mid:]
}

// FormatPrice renders a listing price with thousands separators and the
// 만원 unit, e.g. 2350 -> "2,350만원". Prices are stored in 만원 already.
func FormatPrice(price int64) string {
	return groupThousands(price) + "만원"
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
