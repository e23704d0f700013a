package richtext

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var timezonePattern = regexp.MustCompile(`^(-?)(1[0-2]|0[0-9])\.(\d{2})$`)

// ValidTimezone reports whether tz is an hour offset such as "-06.00".
func ValidTimezone(tz string) bool {
	return timezonePattern.MatchString(tz)
}

// ParseOffset converts an offset such as "-06.00" into a duration.
func ParseOffset(tz string) (time.Duration, error) {
	m := timezonePattern.FindStringSubmatch(tz)
	if m == nil {
		return 0, fmt.Errorf("invalid timezone offset %q", tz)
	}
	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	if m[1] == "-" {
		d = -d
	}
	return d, nil
}

// Localize shifts a UTC instant by the crab's offset, adding an hour inside
// the fixed daylight saving window (8 March through October).
func Localize(t time.Time, tz string) time.Time {
	offset, err := ParseOffset(tz)
	if err != nil {
		offset = -6 * time.Hour
	}
	local := t.UTC().Add(offset)
	month := local.Month()
	if (month >= time.April && month <= time.October) || (month == time.March && local.Day() >= 8) {
		local = local.Add(time.Hour)
	}
	return local
}
