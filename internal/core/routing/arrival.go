package routing

import "time"

// Business-hours window used for ACH arrival estimates.
const (
	businessOpenHour  = 9
	businessCloseHour = 17
)

// ArrivalEstimator projects settlement times per rail. ACH estimates skip
// weekends and off-hours in the configured timezone.
type ArrivalEstimator struct {
	loc *time.Location
}

// NewArrivalEstimator creates an estimator for the given timezone. A nil
// location falls back to America/New_York, then UTC.
func NewArrivalEstimator(loc *time.Location) ArrivalEstimator {
	if loc == nil {
		var err error
		loc, err = time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.UTC
		}
	}
	return ArrivalEstimator{loc: loc}
}

// Estimate returns the projected arrival for a transfer initiated at now.
func (a ArrivalEstimator) Estimate(rail Rail, now time.Time) time.Time {
	switch rail {
	case RailRTP, RailFedNow:
		return now
	case RailPushToCard:
		return now.Add(30 * time.Minute)
	case RailSameDayACH:
		return a.addBusinessHours(now, 4)
	default: // ach
		return a.addBusinessHours(now, 24)
	}
}

// addBusinessHours advances now by whole business hours, Mon-Fri
// 09:00-17:00 local.
func (a ArrivalEstimator) addBusinessHours(now time.Time, hours int) time.Time {
	t := a.nextBusinessInstant(now.In(a.loc))
	for hours > 0 {
		closeToday := time.Date(t.Year(), t.Month(), t.Day(), businessCloseHour, 0, 0, 0, a.loc)
		remaining := int(closeToday.Sub(t).Hours())
		if remaining <= 0 {
			t = a.nextBusinessInstant(closeToday.Add(time.Minute))
			continue
		}
		step := hours
		if step > remaining {
			step = remaining
		}
		t = t.Add(time.Duration(step) * time.Hour)
		hours -= step
		if hours > 0 {
			t = a.nextBusinessInstant(t)
		}
	}
	return t
}

// nextBusinessInstant rolls t forward to the next moment inside business
// hours.
func (a ArrivalEstimator) nextBusinessInstant(t time.Time) time.Time {
	t = t.In(a.loc)
	for {
		switch t.Weekday() {
		case time.Saturday:
			t = startOfDay(t.AddDate(0, 0, 2), a.loc)
			continue
		case time.Sunday:
			t = startOfDay(t.AddDate(0, 0, 1), a.loc)
			continue
		}
		open := time.Date(t.Year(), t.Month(), t.Day(), businessOpenHour, 0, 0, 0, a.loc)
		close := time.Date(t.Year(), t.Month(), t.Day(), businessCloseHour, 0, 0, 0, a.loc)
		if t.Before(open) {
			return open
		}
		if !t.Before(close) {
			t = startOfDay(t.AddDate(0, 0, 1), a.loc)
			continue
		}
		return t
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), businessOpenHour, 0, 0, 0, loc)
}
