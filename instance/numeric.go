package instance

import (
	"strings"

	"github.com/rotisserie/eris"
)

// applyScaleSign shifts the decimal point of an exact decimal string by
// scale and applies the sign flag. The arithmetic stays in text so values
// like 0.1 or 1234.56 keep their exact decimal digits; binary floats would
// round them.
func applyScaleSign(value string, scale int, sign string) (string, error) {
	v := strings.TrimSpace(value)
	neg := false
	if strings.HasPrefix(v, "-") {
		neg = true
		v = v[1:]
	} else if strings.HasPrefix(v, "+") {
		v = v[1:]
	}
	if v == "" {
		return "", eris.Errorf("not a decimal number: %q", value)
	}

	intPart, fracPart, _ := strings.Cut(v, ".")
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return "", eris.Errorf("not a decimal number: %q", value)
	}

	digits := intPart + fracPart
	// Decimal point position counted from the left of the digit string.
	point := len(intPart) + scale

	var out string
	switch {
	case point <= 0:
		out = "0." + strings.Repeat("0", -point) + digits
	case point >= len(digits):
		out = digits + strings.Repeat("0", point-len(digits))
	default:
		out = digits[:point] + "." + digits[point:]
	}

	out = trimDecimal(out)
	if sign == "-" && out != "0" {
		neg = !neg
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out, nil
}

func trimDecimal(s string) string {
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	s = strings.TrimLeft(s, "0")
	if s == "" || strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
