package utils

import "strconv"

// MaskHalfInt64 прячет вторую половину числа для логов. Telegram ID —
// персональные данные, целиком в логи не пишем.
func MaskHalfInt64(value int64) string {
	s := strconv.FormatInt(value, 10)

	start := 0
	if s[0] == '-' {
		start = 1
	}
	digits := len(s) - start
	if digits <= 2 {
		return s[:start] + "**"
	}

	keep := start + digits/2
	masked := []byte(s[:keep])
	for i := keep; i < len(s); i++ {
		masked = append(masked, '*')
	}
	return string(masked)
}
