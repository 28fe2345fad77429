// Package scheduler computes run times from schedule expressions and
// drives the daemon loop.
package scheduler

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultExpression runs once a day in the early morning.
const DefaultExpression = "daily at 06:00"

// Schedule yields the next run time strictly after from.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

var (
	intervalRegex = regexp.MustCompile(`^every\s+(\d+)\s*(s|m|h|d|seconds?|minutes?|hours?|days?)$`)
	dailyRegex    = regexp.MustCompile(`^daily\s+at\s+(\d{1,2}):(\d{2})$`)
)

// Parse accepts "every <n><unit>", "daily at HH:MM" or a five-field cron
// expression.
func Parse(expr string) (Schedule, error) {
	expr = strings.Join(strings.Fields(strings.ToLower(expr)), " ")

	if m := intervalRegex.FindStringSubmatch(expr); m != nil {
		value, _ := strconv.Atoi(m[1])
		var unit time.Duration
		switch m[2][0] {
		case 's':
			unit = time.Second
		case 'm':
			unit = time.Minute
		case 'h':
			unit = time.Hour
		case 'd':
			unit = 24 * time.Hour
		}
		every := time.Duration(value) * unit
		if every < time.Minute {
			return nil, fmt.Errorf("minimum interval is 1 minute")
		}
		return Interval{Every: every}, nil
	}

	if m := dailyRegex.FindStringSubmatch(expr); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return nil, fmt.Errorf("invalid time: %s:%s", m[1], m[2])
		}
		return Daily{Hour: hour, Minute: minute}, nil
	}

	if fields := strings.Fields(expr); len(fields) == 5 {
		c, err := parseCron(fields)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression: %w", err)
		}
		return c, nil
	}

	return nil, fmt.Errorf("unrecognized schedule expression: %q", expr)
}

// Interval runs at a fixed period.
type Interval struct {
	Every time.Duration
}

func (i Interval) Next(from time.Time) time.Time { return from.Add(i.Every) }

func (i Interval) String() string { return "every " + i.Every.String() }

// Daily runs once a day at a local wall-clock time.
type Daily struct {
	Hour, Minute int
}

func (d Daily) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), d.Hour, d.Minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (d Daily) String() string { return fmt.Sprintf("daily at %02d:%02d", d.Hour, d.Minute) }

// Cron is a five-field cron expression. When both day fields are
// restricted, a day matches if either does.
type Cron struct {
	Minute, Hour, DayOfMonth, Month, DayOfWeek []int
	domAny, dowAny                             bool
	source                                     string
}

func parseCron(fields []string) (*Cron, error) {
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}

	var sets [5][]int
	for i, f := range fields {
		vals, err := parseField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return nil, fmt.Errorf("%s field: %w", names[i], err)
		}
		sets[i] = vals
	}
	return &Cron{
		Minute: sets[0], Hour: sets[1], DayOfMonth: sets[2], Month: sets[3], DayOfWeek: sets[4],
		domAny: fields[2] == "*",
		dowAny: fields[4] == "*",
		source: strings.Join(fields, " "),
	}, nil
}

// parseField handles "*", "*/n", "a", "a-b", "a-b/n" and comma lists.
func parseField(field string, lo, hi int) ([]int, error) {
	var values []int
	for _, part := range strings.Split(field, ",") {
		rng, step := part, 1
		if i := strings.IndexByte(part, '/'); i >= 0 {
			n, err := strconv.Atoi(part[i+1:])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid step: %s", part)
			}
			rng, step = part[:i], n
		}

		start, end := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var errA, errB error
			start, errA = strconv.Atoi(a)
			end, errB = strconv.Atoi(b)
			if errA != nil || errB != nil {
				return nil, fmt.Errorf("invalid range: %s", rng)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return nil, fmt.Errorf("invalid value: %s", rng)
			}
			start, end = v, v
			if step > 1 {
				end = hi
			}
		}
		if start < lo || end > hi || start > end {
			return nil, fmt.Errorf("%s out of range [%d-%d]", rng, lo, hi)
		}
		for v := start; v <= end; v += step {
			values = append(values, v)
		}
	}
	slices.Sort(values)
	return slices.Compact(values), nil
}

func (c *Cron) String() string { return c.source }

// Next searches minute by minute, skipping whole months, days and hours
// that cannot match, up to a year ahead.
func (c *Cron) Next(from time.Time) time.Time {
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := from.AddDate(1, 0, 1)
	for t.Before(limit) {
		switch {
		case !slices.Contains(c.Month, int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
		case !c.dayMatches(t):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
		case !slices.Contains(c.Hour, t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
		case !slices.Contains(c.Minute, t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t
		}
	}
	return from.Add(time.Hour)
}

func (c *Cron) dayMatches(t time.Time) bool {
	dom := slices.Contains(c.DayOfMonth, t.Day())
	dow := slices.Contains(c.DayOfWeek, int(t.Weekday()))
	switch {
	case c.domAny && c.dowAny:
		return true
	case c.domAny:
		return dow
	case c.dowAny:
		return dom
	default:
		return dom || dow
	}
}
