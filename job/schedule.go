package job

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Schedule computes the next run after a given finish time.
type Schedule = cronlib.Schedule

// interval is an exact fixed delay. Unlike cronlib.Every it keeps
// sub-second precision, so Next(t) is always t + d.
type interval time.Duration

func (i interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

// Every returns a schedule that runs d after each finish. It panics if d is
// not positive.
func Every(d time.Duration) Schedule {
	if d <= 0 {
		panic(fmt.Sprintf("job: non-positive interval %v", d))
	}
	return interval(d)
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression or descriptor such as "@daily"
// or "@every 1h".
func ParseSchedule(expr string) (Schedule, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("job: parse schedule %q: %w", expr, err)
	}
	return s, nil
}
