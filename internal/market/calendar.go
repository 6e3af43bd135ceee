package market

import (
	"fmt"
	"time"
)

// SessionStatus describes where a market is in its trading day.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "OPEN"
	SessionPreOpen   SessionStatus = "PRE_OPEN"
	SessionPostClose SessionStatus = "POST_CLOSE"
	SessionClosed    SessionStatus = "CLOSED"
	SessionHoliday   SessionStatus = "HOLIDAY"
)

// SessionInfo is the session verdict for one market at a moment.
type SessionInfo struct {
	Market       string
	Status       SessionStatus
	AsOf         time.Time
	CalendarCode string
	Reason       string
	NextOpenAt   *time.Time
	PrevCloseAt  *time.Time
}

// calendarSpec defines one exchange calendar: trading hours in the
// exchange's local zone plus its holiday rules.
type calendarSpec struct {
	code      string
	tz        string
	openHour  int
	openMin   int
	closeHour int
	closeMin  int
	holidays  func(t time.Time) bool
}

var (
	// XKRX: 09:00 to 15:30 KST. Lunar-calendar holidays (Seollal,
	// Chuseok, Buddha's birthday) are not modeled; those days report
	// CLOSED outside hours rather than HOLIDAY.
	xkrx = &calendarSpec{
		code: "XKRX", tz: "Asia/Seoul",
		openHour: 9, openMin: 0, closeHour: 15, closeMin: 30,
		holidays: krHoliday,
	}

	// XNAS: 09:30 to 16:00 Eastern. Good Friday is not modeled.
	xnas = &calendarSpec{
		code: "XNAS", tz: "America/New_York",
		openHour: 9, openMin: 30, closeHour: 16, closeMin: 0,
		holidays: usHoliday,
	}
)

func krHoliday(t time.Time) bool {
	switch fmt.Sprintf("%02d-%02d", t.Month(), t.Day()) {
	case "01-01", "03-01", "05-01", "05-05", "06-06", "08-15", "10-03", "10-09", "12-25", "12-31":
		return true
	}
	return false
}

func usHoliday(t time.Time) bool {
	switch fmt.Sprintf("%02d-%02d", t.Month(), t.Day()) {
	case "01-01", "06-19", "07-04", "12-25":
		return true
	}
	switch {
	case t.Month() == time.January && t.Weekday() == time.Monday && nthWeekdayOfMonth(t) == 3:
		return true // Martin Luther King Jr. Day
	case t.Month() == time.February && t.Weekday() == time.Monday && nthWeekdayOfMonth(t) == 3:
		return true // Presidents' Day
	case t.Month() == time.May && t.Weekday() == time.Monday && t.Day() > 24:
		return true // Memorial Day
	case t.Month() == time.September && t.Weekday() == time.Monday && nthWeekdayOfMonth(t) == 1:
		return true // Labor Day
	case t.Month() == time.November && t.Weekday() == time.Thursday && nthWeekdayOfMonth(t) == 4:
		return true // Thanksgiving
	}
	return false
}

// nthWeekdayOfMonth returns which occurrence of its weekday this day is.
func nthWeekdayOfMonth(t time.Time) int {
	return (t.Day()-1)/7 + 1
}

// Calendar answers trading session questions for the supported markets.
type Calendar struct {
	specs map[string]*calendarSpec
}

// NewCalendar builds the default KOSPI/KOSDAQ/NASDAQ calendar.
func NewCalendar() *Calendar {
	return &Calendar{specs: map[string]*calendarSpec{
		ExchangeKOSPI:  xkrx,
		ExchangeKOSDAQ: xkrx,
		ExchangeNASDAQ: xnas,
	}}
}

func (c *Calendar) spec(market string) (*calendarSpec, error) {
	s, ok := c.specs[market]
	if !ok {
		return nil, fmt.Errorf("unsupported market: %s", market)
	}
	return s, nil
}

// isSessionDay reports whether the local date trades at all.
func (s *calendarSpec) isSessionDay(local time.Time) bool {
	wd := local.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !s.holidays(local)
}

// bounds returns the session open and close for a local date.
func (s *calendarSpec) bounds(local time.Time) (time.Time, time.Time) {
	open := time.Date(local.Year(), local.Month(), local.Day(), s.openHour, s.openMin, 0, 0, local.Location())
	close := time.Date(local.Year(), local.Month(), local.Day(), s.closeHour, s.closeMin, 0, 0, local.Location())
	return open, close
}

func (s *calendarSpec) location() *time.Location {
	loc, err := time.LoadLocation(s.tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// nextOpen finds the next session open strictly usable from now.
func (s *calendarSpec) nextOpen(local time.Time) *time.Time {
	for i := 0; i < 30; i++ {
		day := local.AddDate(0, 0, i)
		if !s.isSessionDay(day) {
			continue
		}
		open, _ := s.bounds(day)
		if open.After(local) {
			u := open.UTC()
			return &u
		}
	}
	return nil
}

// prevClose finds the most recent session close at or before now.
func (s *calendarSpec) prevClose(local time.Time) *time.Time {
	for i := 0; i < 30; i++ {
		day := local.AddDate(0, 0, -i)
		if !s.isSessionDay(day) {
			continue
		}
		_, close := s.bounds(day)
		if !close.After(local) {
			u := close.UTC()
			return &u
		}
	}
	return nil
}

// Session reports the market's session status at now, applying pre-open
// and post-close grace windows in minutes.
func (c *Calendar) Session(market string, now time.Time, preOpenGraceMin, postCloseGraceMin int) (*SessionInfo, error) {
	spec, err := c.spec(market)
	if err != nil {
		return nil, err
	}

	local := now.In(spec.location())
	info := &SessionInfo{
		Market:       market,
		AsOf:         now,
		CalendarCode: spec.code,
		NextOpenAt:   spec.nextOpen(local),
		PrevCloseAt:  spec.prevClose(local),
	}

	if spec.isSessionDay(local) {
		open, close := spec.bounds(local)
		if !local.Before(open) && !local.After(close) {
			info.Status = SessionOpen
			info.Reason = "regular session open"
			return info, nil
		}
	}

	if pre := max(0, preOpenGraceMin); pre > 0 && info.NextOpenAt != nil {
		next := *info.NextOpenAt
		if !now.Before(next.Add(-time.Duration(pre)*time.Minute)) && now.Before(next) {
			info.Status = SessionPreOpen
			info.Reason = fmt.Sprintf("pre-open grace (%dm)", pre)
			return info, nil
		}
	}

	if post := max(0, postCloseGraceMin); post > 0 && info.PrevCloseAt != nil {
		prev := *info.PrevCloseAt
		if now.After(prev) && !now.After(prev.Add(time.Duration(post)*time.Minute)) {
			info.Status = SessionPostClose
			info.Reason = fmt.Sprintf("post-close grace (%dm)", post)
			return info, nil
		}
	}

	if spec.isSessionDay(local) {
		info.Status = SessionClosed
		info.Reason = "session day but outside regular hours"
	} else {
		info.Status = SessionHoliday
		info.Reason = "no session (weekend/holiday)"
	}
	return info, nil
}

// ShouldRunSync decides whether a scheduled sync should proceed: always
// when forced, otherwise during the session or a grace window.
func (c *Calendar) ShouldRunSync(market string, now time.Time, force bool, preOpenGraceMin, postCloseGraceMin int) (bool, string, error) {
	if force {
		return true, "forced", nil
	}

	info, err := c.Session(market, now, preOpenGraceMin, postCloseGraceMin)
	if err != nil {
		return false, "", err
	}

	switch info.Status {
	case SessionOpen, SessionPreOpen, SessionPostClose:
		return true, info.Reason, nil
	default:
		return false, info.Reason, nil
	}
}
