package market

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	changeCellRe = regexp.MustCompile(`^\s*([+-]?[0-9.,]+)\s*\(\s*([+-]?[0-9.,]+)\s*%\s*\)\s*$`)
	marketCapRe  = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*([TtBbMmKk])?\s*$`)
)

// ParseNumber parses a display number like "1,234.5", "(3.2)" for a
// negative, or "12%" into a float. Returns false for empty or junk input.
func ParseNumber(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	if t == "" || strings.EqualFold(t, "nan") {
		return 0, false
	}

	neg := false
	if strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")") {
		neg = true
		t = strings.TrimSpace(t[1 : len(t)-1])
	}

	t = strings.NewReplacer(",", "", "%", "", "$", "").Replace(t)
	t = strings.TrimSpace(t)
	if t == "" || strings.EqualFold(t, "nan") {
		return 0, false
	}

	v, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// ParseInt parses a display integer, tolerating thousands separators and
// decimal points.
func ParseInt(s string) (int64, bool) {
	v, ok := ParseNumber(s)
	if !ok {
		return 0, false
	}
	return int64(v), true
}

// ParseMarketCap converts a SlickCharts market cap string like "4.49T",
// "494.45B" or "980.12M" into absolute USD.
func ParseMarketCap(s string) (int64, bool) {
	t := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	t = strings.TrimPrefix(t, "$")
	if t == "" {
		return 0, false
	}

	m := marketCapRe.FindStringSubmatch(t)
	if m == nil {
		return 0, false
	}

	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}

	var mult float64
	switch strings.ToUpper(m[2]) {
	case "T":
		mult = 1e12
	case "B":
		mult = 1e9
	case "M":
		mult = 1e6
	case "K":
		mult = 1e3
	default:
		mult = 1
	}
	return int64(math.Round(val * mult)), true
}

// FormatMarketCap renders an absolute value for display: 4490000000000
// becomes "4.49T".
func FormatMarketCap(n int64) string {
	if n == 0 {
		return "-"
	}

	f := float64(n)
	abs := math.Abs(f)

	var v float64
	var suffix string
	switch {
	case abs >= 1e12:
		v, suffix = f/1e12, "T"
	case abs >= 1e9:
		v, suffix = f/1e9, "B"
	case abs >= 1e6:
		v, suffix = f/1e6, "M"
	case abs >= 1e3:
		v, suffix = f/1e3, "K"
	default:
		v = f
	}

	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + suffix
}

// ParseChangeCell splits a SlickCharts "Chg" cell like "-0.18(-0.10%)"
// into the absolute change and the percent change. A bare number yields
// only the absolute part.
func ParseChangeCell(s string) (chg, pct *float64) {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil, nil
	}

	if m := changeCellRe.FindStringSubmatch(t); m != nil {
		if v, ok := ParseNumber(m[1]); ok {
			chg = &v
		}
		if v, ok := ParseNumber(m[2]); ok {
			pct = &v
		}
		return chg, pct
	}

	if i := strings.IndexByte(t, '('); i >= 0 {
		if j := strings.IndexByte(t[i:], ')'); j >= 0 {
			if v, ok := ParseNumber(t[:i]); ok {
				chg = &v
			}
			if v, ok := ParseNumber(t[i+1 : i+j]); ok {
				pct = &v
			}
			return chg, pct
		}
	}

	if v, ok := ParseNumber(t); ok {
		chg = &v
	}
	return chg, nil
}

// PctFromPrev returns (cur-prev)/prev*100, or nil when prev is missing
// or zero.
func PctFromPrev(prev, cur *float64) *float64 {
	if prev == nil || cur == nil || *prev == 0 {
		return nil
	}
	v := (*cur - *prev) / *prev * 100
	return &v
}
