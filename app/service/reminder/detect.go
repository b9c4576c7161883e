package reminder

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	intentKeyword  = "提醒"
	dateTimeLayout = "2006/1/2 15:04"
)

var (
	dateTimeRe  = regexp.MustCompile(`(\d{4}/\d{1,2}/\d{1,2})\s+(\d{1,2}:\d{2})`)
	clockTimeRe = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
)

// DetectIntent reports whether the text expresses a reminder request and
// extracts the reminder subject. Detection is keyword based: anything after
// the first 提醒 becomes the subject, falling back to the whole text when
// nothing follows.
func DetectIntent(text string) (string, bool) {
	idx := strings.Index(text, intentKeyword)
	if idx < 0 {
		return "", false
	}

	subject := strings.TrimSpace(text[idx+len(intentKeyword):])
	if subject == "" {
		subject = strings.TrimSpace(text)
	}

	return subject, true
}

// DefaultDueTime suggests a due time for a free-text reminder request.
// Recognized forms, in order: 明天上午/下午/晚上 shortcuts, an explicit
// "YYYY/MM/DD HH:MM", a bare "HH:MM" (today, or tomorrow if already past).
// Anything else falls through to one hour from now, so the suggestion is
// always in the future.
func DefaultDueTime(now time.Time, text string) time.Time {
	tomorrow := now.AddDate(0, 0, 1)

	switch {
	case strings.Contains(text, "明天上午"):
		return dayAt(tomorrow, 9, 0)
	case strings.Contains(text, "明天下午"):
		return dayAt(tomorrow, 15, 0)
	case strings.Contains(text, "明天晚上"):
		return dayAt(tomorrow, 20, 0)
	}

	if dt, ok := parseDateTime(text); ok {
		if dt.After(now) {
			return dt
		}
		// an explicit but already-past datetime gets the fallback, not a
		// reinterpretation of its clock part
		return now.Add(time.Hour)
	}

	if hour, minute, ok := parseClockTime(text); ok {
		candidate := dayAt(now, hour, minute)
		if candidate.After(now) {
			return candidate
		}
		return candidate.AddDate(0, 0, 1)
	}

	return now.Add(time.Hour)
}

// ExtractTimeCorrection parses a corrected due time from a confirmation
// reply. A full "YYYY/MM/DD HH:MM" wins when it lies in the future;
// otherwise a bare "HH:MM" is applied to base's date, bumped a day if that
// instant has already passed. Unparseable input yields ok == false.
func ExtractTimeCorrection(now, base time.Time, text string) (time.Time, bool) {
	if dt, ok := parseDateTime(text); ok && dt.After(now) {
		return dt, true
	}

	hour, minute, ok := parseClockTime(text)
	if !ok {
		return time.Time{}, false
	}

	corrected := dayAt(base, hour, minute)
	if corrected.Before(now) {
		corrected = corrected.AddDate(0, 0, 1)
	}

	return corrected, true
}

// ParseExplicitTime parses the strict "YYYY/MM/DD HH:MM" form used by the
// memo command surface.
func ParseExplicitTime(text string) (time.Time, bool) {
	return parseDateTime(text)
}

func parseDateTime(text string) (time.Time, bool) {
	match := dateTimeRe.FindStringSubmatch(text)
	if match == nil {
		return time.Time{}, false
	}

	dt, err := time.ParseInLocation(dateTimeLayout, match[1]+" "+match[2], time.Local)
	if err != nil {
		return time.Time{}, false
	}

	return dt, true
}

func parseClockTime(text string) (int, int, bool) {
	match := clockTimeRe.FindStringSubmatch(text)
	if match == nil {
		return 0, 0, false
	}

	hour, _ := strconv.Atoi(match[1])
	minute, _ := strconv.Atoi(match[2])
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}

	return hour, minute, true
}

func dayAt(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
