package ics

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"clubsync/internal/logging"
)

var logger = logging.Named("ics")

// ParseDateTime converts an ICS date or date-time token, plus an optional
// timezone identifier, into an absolute instant (returned in UTC).
//
// Interpretation rules:
//   - token ending in Z is UTC;
//   - an 8-digit token with no time component is an all-day date at
//     midnight in tzid (or the host's local zone when tzid is empty);
//   - a token with a tzid is wall-clock time in that named zone, converted
//     to UTC with standard offset rules (DST included);
//   - a token with neither Z nor tzid is floating time, interpreted in the
//     host's local zone. This is a documented fallback, not a correctness
//     goal.
//
// An unknown timezone identifier downgrades to the floating-time fallback
// with a warning; it never fails the caller.
func ParseDateTime(token, tzid string) (time.Time, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, errors.New("empty date token")
	}

	isUTC := strings.HasSuffix(token, "Z")
	year, month, day, hour, min, sec, err := splitComponents(token)
	if err != nil {
		return time.Time{}, err
	}

	if isUTC {
		return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC), nil
	}

	loc := time.Local
	if tzid != "" {
		l, lerr := time.LoadLocation(tzid)
		if lerr != nil {
			logger.Warn().Str("tzid", tzid).Str("token", token).
				Msg("unknown timezone, falling back to floating time")
		} else {
			loc = l
		}
	}

	return time.Date(year, time.Month(month), day, hour, min, sec, 0, loc).UTC(), nil
}

// ParseExDates normalizes the comma-separated instants of an EXDATE
// property, applying its TZID parameter to each token. Unparseable tokens
// are skipped.
func ParseExDates(prop Property) []time.Time {
	if prop.Value == "" {
		return nil
	}

	var out []time.Time
	for _, token := range strings.Split(prop.Value, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		t, err := ParseDateTime(token, prop.Params["TZID"])
		if err != nil {
			logger.Warn().Str("token", token).Err(err).Msg("skipping unparseable EXDATE token")
			continue
		}
		out = append(out, t)
	}
	return out
}

// splitComponents extracts the calendar fields from a compact ICS token
// (YYYYMMDD or YYYYMMDDTHHMMSS[Z]). Missing time components default to
// zero, tolerating truncated tokens such as YYYYMMDDTHHMM.
func splitComponents(token string) (year, month, day, hour, min, sec int, err error) {
	clean := strings.Map(func(r rune) rune {
		if r == 'T' || r == 'Z' {
			return -1
		}
		return r
	}, token)

	if len(clean) < 8 {
		return 0, 0, 0, 0, 0, 0, errors.New("date token too short: " + token)
	}

	year, err = strconv.Atoi(clean[0:4])
	if err != nil {
		return 0, 0, 0, 0, 0, 0, errors.New("invalid date token: " + token)
	}
	month, err = strconv.Atoi(clean[4:6])
	if err != nil {
		return 0, 0, 0, 0, 0, 0, errors.New("invalid date token: " + token)
	}
	day, err = strconv.Atoi(clean[6:8])
	if err != nil {
		return 0, 0, 0, 0, 0, 0, errors.New("invalid date token: " + token)
	}

	digits := func(from, to int) int {
		if len(clean) < to {
			return 0
		}
		n, _ := strconv.Atoi(clean[from:to])
		return n
	}
	hour = digits(8, 10)
	min = digits(10, 12)
	sec = digits(12, 14)

	return year, month, day, hour, min, sec, nil
}

// IsDateOnly reports whether a token carries no time component (an all-day
// date such as 20220401).
func IsDateOnly(token string) bool {
	return len(strings.TrimSpace(token)) == 8 && !strings.Contains(token, "T")
}
