package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,234.5", 1234.5, true},
		{"  42 ", 42, true},
		{"-3.25%", -3.25, true},
		{"$190.12", 190.12, true},
		{"(2.5)", -2.5, true},
		{"", 0, false},
		{"NaN", 0, false},
		{"junk", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "input %q", tt.in)
		}
	}
}

func TestParseInt(t *testing.T) {
	got, ok := ParseInt("12,345,678")
	require.True(t, ok)
	assert.Equal(t, int64(12345678), got)

	_, ok = ParseInt("-")
	assert.False(t, ok)
}

func TestParseMarketCap(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"4.49T", 4_490_000_000_000, true},
		{"$812.5B", 812_500_000_000, true},
		{"53M", 53_000_000, true},
		{"900K", 900_000, true},
		{"1,234", 1234, true},
		{"", 0, false},
		{"junk", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseMarketCap(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "input %q", tt.in)
		}
	}
}

func TestFormatMarketCap(t *testing.T) {
	assert.Equal(t, "4.49T", FormatMarketCap(4_490_000_000_000))
	assert.Equal(t, "812.5B", FormatMarketCap(812_500_000_000))
	assert.Equal(t, "53M", FormatMarketCap(53_000_000))
	assert.Equal(t, "1.23K", FormatMarketCap(1234))
	assert.Equal(t, "-", FormatMarketCap(0))
}

func TestParseChangeCell(t *testing.T) {
	tests := []struct {
		in      string
		wantChg *float64
		wantPct *float64
	}{
		{"-0.18(-0.10%)", f(-0.18), f(-0.10)},
		{"2.31(1.24%)", f(2.31), f(1.24)},
		{"-0.18", f(-0.18), nil},
		{"", nil, nil},
		{"junk", nil, nil},
	}
	for _, tt := range tests {
		chg, pct := ParseChangeCell(tt.in)
		assertFloatPtr(t, tt.wantChg, chg, tt.in)
		assertFloatPtr(t, tt.wantPct, pct, tt.in)
	}
}

func TestPctFromPrev(t *testing.T) {
	got := PctFromPrev(f(100), f(110))
	require.NotNil(t, got)
	assert.InDelta(t, 10.0, *got, 1e-9)

	assert.Nil(t, PctFromPrev(f(0), f(110)))
	assert.Nil(t, PctFromPrev(nil, f(110)))
	assert.Nil(t, PctFromPrev(f(100), nil))
}

func f(v float64) *float64 { return &v }

func assertFloatPtr(t *testing.T, want, got *float64, label string) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got, "input %q", label)
		return
	}
	require.NotNil(t, got, "input %q", label)
	assert.InDelta(t, *want, *got, 1e-9, "input %q", label)
}
