package digest

import (
	"strings"
	"time"

	"PaperDigest/internal/domain"
)

// ShouldSendToday applies the delivery schedule: nothing on weekends, daily
// subscribers at most once per calendar day, weekly subscribers on their
// preferred ISO weekday once at least seven days have passed.
func ShouldSendToday(sub domain.Subscriber, now time.Time) bool {
	frequency := domain.Frequency(strings.ToLower(strings.TrimSpace(string(sub.Frequency))))
	if frequency != domain.FrequencyDaily && frequency != domain.FrequencyWeekly {
		return false
	}

	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}

	neverSent := sub.LastSent == nil
	daysSince := 0
	if !neverSent {
		daysSince = calendarDaysBetween(sub.LastSent.In(now.Location()), now)
	}

	switch frequency {
	case domain.FrequencyDaily:
		return neverSent || daysSince >= 1
	default:
		preferred := sub.PreferredDay
		if preferred < 1 || preferred > 7 {
			preferred = 1
		}
		return isoWeekday(now) == preferred && (neverSent || daysSince >= 7)
	}
}

func calendarDaysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// isoWeekday maps Monday..Sunday to 1..7.
func isoWeekday(t time.Time) int {
	if wd := t.Weekday(); wd != time.Sunday {
		return int(wd)
	}
	return 7
}
