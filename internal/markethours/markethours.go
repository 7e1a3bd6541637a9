// Package markethours knows the NSE trading calendar. The batch pipeline uses
// it to warn when a run happens mid-session (the newest candle is still
// forming) and to report which session the computed signals cover.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// NSE cash-market hours in IST.
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// IsMarketOpen returns true if t falls within NSE trading hours
// (9:15 AM – 3:30 PM IST, Mon–Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsTradingDay returns true if t is a weekday and not an NSE holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	wd := ist.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !IsHoliday(ist)
}

// TodayClose returns the close time (3:30 PM IST) of t's calendar day.
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// LastSessionClose returns the close of the most recent completed trading
// session at or before t. Signals computed from daily candles cover data
// through this instant.
func LastSessionClose(t time.Time) time.Time {
	ist := t.In(IST)
	d := ist
	for i := 0; i < 14; i++ {
		if IsTradingDay(d) {
			cl := TodayClose(d)
			if !cl.After(ist) {
				return cl
			}
		}
		d = d.AddDate(0, 0, -1)
	}
	return TodayClose(d)
}

// StatusString returns a human-readable market status for run logs.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		d := TodayClose(t).Sub(t.In(IST))
		return fmt.Sprintf("market open, closes in %s", fmtDur(d))
	}
	last := LastSessionClose(t)
	return fmt.Sprintf("market closed, last session ended %s", last.Format("Mon 2 Jan 15:04 MST"))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
