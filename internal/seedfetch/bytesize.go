package seedfetch

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// parseBytes accepts sizes like "512", "64k", "4mb" or "1.5g".
func parseBytes(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	num := strings.TrimSpace(strings.TrimSuffix(s, "b"))
	if num == "" {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	mult := int64(1)
	switch num[len(num)-1] {
	case 'k':
		mult = kib
	case 'm':
		mult = mib
	case 'g':
		mult = gib
	}
	if mult > 1 {
		num = strings.TrimSpace(num[:len(num)-1])
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	n := v * float64(mult)
	if n >= math.MaxInt64 {
		return 0, fmt.Errorf("size %q out of range", s)
	}
	return int64(n), nil
}

func formatBytes(n int64) string {
	switch {
	case n < kib:
		return fmt.Sprintf("%db", n)
	case n < mib:
		return trimFloat(float64(n)/kib) + "kb"
	case n < gib:
		return trimFloat(float64(n)/mib) + "mb"
	default:
		return trimFloat(float64(n)/gib) + "gb"
	}
}

func trimFloat(f float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", f), ".0")
}
