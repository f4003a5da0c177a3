package domain

import (
	"strconv"
	"strings"
	"time"
)

// FormatMetric renders a metric with thousands separators and two decimal
// places, dropping a trailing ".00" so whole counts read as integers:
// 1234.5 -> "1,234.50", 1234 -> "1,234", 0.5 -> "0.50".
func FormatMetric(x float64) string {
	return strings.TrimSuffix(FormatFixed(x), ".00")
}

// FormatFixed renders a value with thousands separators and exactly two
// decimal places, keeping ".00". Used where columns must stay aligned.
func FormatFixed(x float64) string {
	s := strconv.FormatFloat(x, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	out := groupThousands(intPart) + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

// FormatCount renders a whole count with thousands separators and no
// decimal places: 1234567 -> "1,234,567".
func FormatCount(x float64) string {
	s := strconv.FormatFloat(x, 'f', 0, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	out := groupThousands(s)
	if neg {
		out = "-" + out
	}
	return out
}

// FormatDate renders a date the way chart hovers expect: "Jan 02, 2006".
func FormatDate(t time.Time) string {
	return t.Format("Jan 02, 2006")
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	b.Grow(n + n/3)
	pre := n % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
