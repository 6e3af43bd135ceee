package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seoulTime(t *testing.T, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func nyTime(t *testing.T, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func TestSession_KRX(t *testing.T) {
	cal := NewCalendar()

	tests := []struct {
		name string
		now  time.Time
		pre  int
		post int
		want SessionStatus
	}{
		{"mid session", seoulTime(t, 2026, time.January, 7, 10, 0), 0, 0, SessionOpen},
		{"at open", seoulTime(t, 2026, time.January, 7, 9, 0), 0, 0, SessionOpen},
		{"at close", seoulTime(t, 2026, time.January, 7, 15, 30), 0, 0, SessionOpen},
		{"pre-open grace", seoulTime(t, 2026, time.January, 7, 8, 40), 30, 0, SessionPreOpen},
		{"before grace", seoulTime(t, 2026, time.January, 7, 8, 20), 30, 0, SessionClosed},
		{"post-close grace", seoulTime(t, 2026, time.January, 7, 16, 0), 0, 60, SessionPostClose},
		{"evening", seoulTime(t, 2026, time.January, 7, 20, 0), 0, 60, SessionClosed},
		{"saturday", seoulTime(t, 2026, time.January, 10, 11, 0), 0, 0, SessionHoliday},
		{"new year", seoulTime(t, 2026, time.January, 1, 11, 0), 0, 0, SessionHoliday},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := cal.Session(ExchangeKOSPI, tt.now, tt.pre, tt.post)
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.Status)
			assert.Equal(t, "XKRX", info.CalendarCode)
		})
	}
}

func TestSession_Nasdaq(t *testing.T) {
	cal := NewCalendar()

	info, err := cal.Session(ExchangeNASDAQ, nyTime(t, 2026, time.January, 7, 10, 0), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, SessionOpen, info.Status)
	assert.Equal(t, "XNAS", info.CalendarCode)

	// Thanksgiving 2026 falls on the fourth Thursday, November 26.
	info, err = cal.Session(ExchangeNASDAQ, nyTime(t, 2026, time.November, 26, 11, 0), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, SessionHoliday, info.Status)

	_, err = cal.Session("LSE", nyTime(t, 2026, time.January, 7, 10, 0), 0, 0)
	assert.Error(t, err)
}

func TestSession_NextOpenSkipsWeekend(t *testing.T) {
	cal := NewCalendar()

	// Friday evening: next open is Monday morning.
	info, err := cal.Session(ExchangeKOSPI, seoulTime(t, 2026, time.January, 9, 18, 0), 0, 0)
	require.NoError(t, err)
	require.NotNil(t, info.NextOpenAt)
	assert.Equal(t, seoulTime(t, 2026, time.January, 12, 9, 0).UTC(), *info.NextOpenAt)

	require.NotNil(t, info.PrevCloseAt)
	assert.Equal(t, seoulTime(t, 2026, time.January, 9, 15, 30).UTC(), *info.PrevCloseAt)
}

func TestShouldRunSync(t *testing.T) {
	cal := NewCalendar()

	run, reason, err := cal.ShouldRunSync(ExchangeKOSPI, seoulTime(t, 2026, time.January, 10, 11, 0), true, 0, 0)
	require.NoError(t, err)
	assert.True(t, run)
	assert.Equal(t, "forced", reason)

	run, _, err = cal.ShouldRunSync(ExchangeKOSPI, seoulTime(t, 2026, time.January, 7, 10, 0), false, 0, 0)
	require.NoError(t, err)
	assert.True(t, run)

	run, _, err = cal.ShouldRunSync(ExchangeKOSPI, seoulTime(t, 2026, time.January, 10, 11, 0), false, 5, 10)
	require.NoError(t, err)
	assert.False(t, run)
}
