package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/Tempo/internal/domain"
)

// Kind — тип выражения расписания.
type Kind int

const (
	KindUnknown Kind = iota
	KindCron
	KindInstant
	KindInterval
)

// String возвращает строковое представление Kind.
func (k Kind) String() string {
	switch k {
	case KindCron:
		return "cron"
	case KindInstant:
		return "instant"
	case KindInterval:
		return "interval"
	default:
		return "unknown"
	}
}

// cronParser — парсер стандартных 5-польных cron-выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

var intervalRe = regexp.MustCompile(`^(\d+)([smhd])$`)

// Форматы абсолютного момента времени. Форматы без смещения
// интерпретируются в часовом поясе job.
var (
	offsetLayouts = []string{time.RFC3339Nano}
	localLayouts  = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02",
	}
)

var intervalUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// Classify определяет тип выражения.
// Порядок проверки: cron → абсолютный момент → интервал.
func Classify(expr string) Kind {
	expr = strings.TrimSpace(expr)

	if isCron(expr) {
		return KindCron
	}
	if _, ok := parseInstant(expr, time.UTC); ok {
		return KindInstant
	}
	if _, ok := parseInterval(expr); ok {
		return KindInterval
	}
	return KindUnknown
}

// Validate проверяет выражение и часовой пояс, не вычисляя время запуска.
func Validate(expr, timezone string) error {
	if _, err := loadLocation(timezone); err != nil {
		return err
	}
	if Classify(expr) == KindUnknown {
		return fmt.Errorf("%w: unrecognized expression %q", ErrInvalidSchedule, expr)
	}
	return nil
}

// NextRun вычисляет следующее время запуска строго после now.
//
//   - cron: следующее срабатывание после now в timezone
//   - абсолютный момент: сам момент, если он позже now, иначе nil
//   - интервал: now + интервал (отсчёт от момента вычисления)
//
// Результат всегда в UTC. nil без ошибки означает, что будущих
// срабатываний нет и job должен быть завершён.
func NextRun(expr, timezone string, now time.Time) (*time.Time, error) {
	loc, err := loadLocation(timezone)
	if err != nil {
		return nil, err
	}
	expr = strings.TrimSpace(expr)

	if isCron(expr) {
		sched, err := parseCron(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		next := sched.Next(now.In(loc))
		if next.IsZero() {
			// robfig/cron возвращает нулевое время для невыполнимых выражений (31 февраля)
			return nil, nil
		}
		return utc(next), nil
	}

	if instant, ok := parseInstant(expr, loc); ok {
		if !instant.After(now) {
			return nil, nil
		}
		return utc(instant), nil
	}

	if interval, ok := parseInterval(expr); ok {
		return utc(now.Add(interval)), nil
	}

	return nil, fmt.Errorf("%w: unrecognized expression %q", ErrInvalidSchedule, expr)
}

// isCron — ровно 5 полей и выражение принимается парсером.
func isCron(expr string) bool {
	if len(strings.Fields(expr)) != 5 {
		return false
	}
	_, err := parseCron(expr)
	return err == nil
}

func parseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(normalizeDOW(expr))
}

// normalizeDOW переводит воскресенье 7 в поле дня недели в 0: robfig/cron знает только 0-6.
// "7" → "0", "5-7" → "5,6,0", "1-7/2" → "1,3,5,0".
func normalizeDOW(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return expr
	}
	items := strings.Split(fields[4], ",")
	for i, item := range items {
		items[i] = normalizeDOWItem(item)
	}
	fields[4] = strings.Join(items, ",")
	return strings.Join(fields, " ")
}

func normalizeDOWItem(item string) string {
	span, stepText, hasStep := strings.Cut(item, "/")
	lo, hi, isRange := strings.Cut(span, "-")
	if !isRange {
		hi = lo
	}
	from, errFrom := strconv.Atoi(lo)
	to, errTo := strconv.Atoi(hi)
	if errFrom != nil || errTo != nil || to != 7 || from < 0 || from > to {
		return item
	}

	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepText)
		if err != nil || n <= 0 {
			return item
		}
		step = n
	}

	var days []string
	for d := from; d <= to; d += step {
		days = append(days, strconv.Itoa(d%7))
	}
	return strings.Join(days, ",")
}

func parseInstant(expr string, loc *time.Location) (time.Time, bool) {
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, expr); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, expr, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseInterval(expr string) (time.Duration, bool) {
	m := intervalRe.FindStringSubmatch(strings.ToLower(expr))
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	unit := intervalUnits[m[2]]
	if n > int64(1<<63-1)/int64(unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

func loadLocation(timezone string) (*time.Location, error) {
	if timezone == "" {
		timezone = domain.DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, timezone)
	}
	return loc, nil
}

func utc(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
