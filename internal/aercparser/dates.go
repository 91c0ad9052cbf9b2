package aercparser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// twoLetterMonths resolves the abbreviated month codes AERC calendar
// pages occasionally use in tight table layouts, where three-letter
// abbreviations would push a row out of its column width. The table is
// deliberately small and explicit (no prefix matching) since several
// codes are intentionally one letter apart (Jn/Jl, Mr/My).
var twoLetterMonths = map[string]time.Month{
	"ja": time.January,
	"fe": time.February,
	"mr": time.March,
	"ap": time.April,
	"my": time.May,
	"jn": time.June,
	"jl": time.July,
	"au": time.August,
	"se": time.September,
	"oc": time.October,
	"no": time.November,
	"de": time.December,
}

var threeLetterMonths = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// dateRangeSingleMonth matches "Mon D[-D], YYYY" ranges such as
// "Jun 15-16, 2024" and "Jun 15, 2024"; dateRangeCrossMonth matches
// "Mon D-Mon D, YYYY" ranges such as "Jun 29-Jul 1, 2024".
var dateRangeSingleMonth = regexp.MustCompile(
	`(?i)([A-Za-z]{2,3})\.?\s+(\d{1,2})(?:\s*-\s*(\d{1,2}))?\s*,?\s*(\d{4})`,
)
var dateRangeCrossMonth = regexp.MustCompile(
	`(?i)([A-Za-z]{2,3})\.?\s+(\d{1,2})\s*-\s*([A-Za-z]{2,3})\.?\s+(\d{1,2})\s*,?\s*(\d{4})`,
)

// ParseDateRange parses one row's date text into (start, end). It
// returns ok=false when the text has no "Mon D[-D], YYYY"-shaped date
// at all; a date of that shape whose month token is not in either
// month table still returns ok=true with a
// zero start/end and a warning the caller should surface as a
// RowParseError (row emitted, date_start = null).
func ParseDateRange(text string) (start, end time.Time, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, time.Time{}, false
	}

	if m := dateRangeCrossMonth.FindStringSubmatch(text); m != nil {
		startMonth, okStart := resolveMonth(m[1])
		endMonth, okEnd := resolveMonth(m[3])
		startDay, _ := strconv.Atoi(m[2])
		endDay, _ := strconv.Atoi(m[4])
		year, _ := strconv.Atoi(m[5])
		if okStart && okEnd && year > 0 {
			return time.Date(year, startMonth, startDay, 0, 0, 0, 0, time.UTC),
				time.Date(year, endMonth, endDay, 0, 0, 0, 0, time.UTC),
				true
		}
		return time.Time{}, time.Time{}, true
	}

	if m := dateRangeSingleMonth.FindStringSubmatch(text); m != nil {
		month, okMonth := resolveMonth(m[1])
		startDay, _ := strconv.Atoi(m[2])
		endDay := startDay
		if m[3] != "" {
			endDay, _ = strconv.Atoi(m[3])
		}
		year, _ := strconv.Atoi(m[4])
		if okMonth && year > 0 {
			return time.Date(year, month, startDay, 0, 0, 0, 0, time.UTC),
				time.Date(year, month, endDay, 0, 0, 0, 0, time.UTC),
				true
		}
		return time.Time{}, time.Time{}, true
	}

	return time.Time{}, time.Time{}, false
}

func resolveMonth(token string) (time.Month, bool) {
	key := strings.ToLower(token)
	if len(key) >= 3 {
		if m, found := threeLetterMonths[key[:3]]; found {
			return m, true
		}
	}
	if len(key) == 2 {
		if m, found := twoLetterMonths[key]; found {
			return m, true
		}
	}
	return 0, false
}
