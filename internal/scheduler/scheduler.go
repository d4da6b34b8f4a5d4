package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// JobFunc is the function signature for scheduled jobs
type JobFunc func(ctx context.Context)

// Scheduler wraps gocron v2 and provides clock-aligned scheduling
type Scheduler struct {
	gocronScheduler gocron.Scheduler
	job             gocron.Job
	interval        string
	cronExpr        string
	timezone        *time.Location
	runImmediately  bool
	clock           clockwork.Clock
	logger          *slog.Logger
}

// Config holds scheduler configuration
type Config struct {
	Interval       string          // Duration (e.g., "10s") or cron expression (e.g., "*/5 * * * *")
	Timezone       *time.Location  // Timezone for cron expressions (default: UTC)
	RunImmediately bool            // Execute once right after start
	Clock          clockwork.Clock // Time source (default: wall clock)
	Logger         *slog.Logger    // Logger for scheduler events
}

const jobName = "balance-poll"

// maxSampledRuns bounds the activations inspected to estimate a cron interval
const maxSampledRuns = 16

var (
	// cronPattern matches cron expressions (5 or 6 fields)
	cronPattern = regexp.MustCompile(`^(\S+\s+){4,5}\S+$`)

	// cronParser accepts the same syntax as gocron.CronJob(expr, true)
	cronParser = cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	// validMinuteIntervals are minute intervals that divide evenly into 60
	validMinuteIntervals = map[int]bool{
		1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 10: true, 12: true,
		15: true, 20: true, 30: true,
	}

	// validHourIntervals are hour intervals that divide evenly into 24
	validHourIntervals = map[int]bool{
		1: true, 2: true, 3: true, 4: true, 6: true, 8: true, 12: true, 24: true,
	}

	// validSecondIntervals are second intervals that divide evenly into 60
	validSecondIntervals = map[int]bool{
		1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 10: true, 12: true,
		15: true, 20: true, 30: true,
	}
)

// NewScheduler creates a new scheduler instance
func NewScheduler(ctx context.Context, cfg Config, jobFunc JobFunc) (*Scheduler, error) {
	if jobFunc == nil {
		return nil, errors.New("job function is required")
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cronExpr, err := resolveCron(cfg.Interval)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		interval:       cfg.Interval,
		cronExpr:       cronExpr,
		timezone:       cfg.Timezone,
		runImmediately: cfg.RunImmediately,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
	}

	gocronScheduler, err := gocron.NewScheduler(
		gocron.WithLocation(cfg.Timezone),
		gocron.WithClock(cfg.Clock),
		gocron.WithLogger(newGocronLoggerAdapter(cfg.Logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	s.gocronScheduler = gocronScheduler

	s.logger.Info("Scheduling balance poll",
		"interval", cfg.Interval,
		"cron", cronExpr,
		"timezone", cfg.Timezone.String())

	// Reschedule mode drops a run that would overlap the previous one
	job, err := gocronScheduler.NewJob(
		gocron.CronJob(cronExpr, true),
		gocron.NewTask(func() { jobFunc(ctx) }),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = gocronScheduler.Shutdown()
		return nil, fmt.Errorf("failed to create scheduled job: %w", err)
	}
	s.job = job

	return s, nil
}

// Start begins the scheduler
func (s *Scheduler) Start() error {
	s.gocronScheduler.Start()

	if s.runImmediately {
		s.logger.Info("Executing job immediately")
		if err := s.job.RunNow(); err != nil {
			// Scheduled executions still follow
			s.logger.Error("Immediate execution failed", "error", err)
		}
	}

	nextRun, err := s.NextRun()
	if err == nil {
		s.logger.Info("Scheduler started", "next_run", nextRun.Format(time.RFC3339), "timezone", s.timezone.String())
	} else {
		s.logger.Info("Scheduler started")
	}

	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.gocronScheduler.Shutdown()
}

// NextRun returns the next scheduled run time
func (s *Scheduler) NextRun() (time.Time, error) {
	nextRun, err := s.job.NextRun()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get next run: %w", err)
	}
	return nextRun, nil
}

// LastRun returns the last run time
func (s *Scheduler) LastRun() (time.Time, error) {
	lastRun, err := s.job.LastRun()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last run: %w", err)
	}
	return lastRun, nil
}

// CronExpression returns the cron expression the job runs on
func (s *Scheduler) CronExpression() string {
	return s.cronExpr
}

// GetExpectedInterval returns the longest gap between upcoming executions.
// The health checker uses it to decide whether polls are on schedule.
func (s *Scheduler) GetExpectedInterval() (time.Duration, error) {
	if duration, err := time.ParseDuration(s.interval); err == nil {
		return duration, nil
	}

	sched, err := cronParser.Parse(s.cronExpr)
	if err != nil {
		return 0, fmt.Errorf("invalid cron expression: %w", err)
	}

	var longest time.Duration
	prev := sched.Next(s.clock.Now().In(s.timezone))
	for range maxSampledRuns {
		next := sched.Next(prev)
		if next.IsZero() {
			break
		}
		longest = max(longest, next.Sub(prev))
		prev = next
	}
	if longest == 0 {
		return 0, fmt.Errorf("cron expression %q never fires", s.cronExpr)
	}
	return longest, nil
}

// IsCronExpression checks if a string is a cron expression (vs duration)
func IsCronExpression(s string) bool {
	return cronPattern.MatchString(strings.TrimSpace(s))
}

func resolveCron(interval string) (string, error) {
	if IsCronExpression(interval) {
		if _, err := cronParser.Parse(interval); err != nil {
			return "", fmt.Errorf("invalid cron expression: %w", err)
		}
		return interval, nil
	}

	cronExpr, err := durationToCron(interval)
	if err != nil {
		return "", fmt.Errorf("invalid interval: %w", err)
	}
	return cronExpr, nil
}

// durationToCron converts a duration string to a clock-aligned cron expression
// Examples:
//
//	"5m" -> "*/5 * * * *"
//	"1h" -> "0 */1 * * *"
//	"10s" -> "*/10 * * * * *"
func durationToCron(durationStr string) (string, error) {
	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		return "", fmt.Errorf("invalid duration format: %w", err)
	}

	switch {
	case duration <= 0:
		return "", fmt.Errorf("interval must be positive (got %s)", durationStr)

	case duration < time.Minute:
		if duration%time.Second != 0 {
			return "", fmt.Errorf("duration must be whole seconds, minutes, or hours (got %s)", durationStr)
		}
		seconds := int(duration.Seconds())
		if !validSecondIntervals[seconds] {
			return "", fmt.Errorf("second intervals must divide evenly into 60 (got %ds)", seconds)
		}
		return fmt.Sprintf("*/%d * * * * *", seconds), nil

	case duration < time.Hour:
		if duration%time.Minute != 0 {
			return "", fmt.Errorf("duration must be whole seconds, minutes, or hours (got %s)", durationStr)
		}
		minutes := int(duration.Minutes())
		if !validMinuteIntervals[minutes] {
			return "", fmt.Errorf("minute intervals must divide evenly into 60 (got %dm)", minutes)
		}
		return fmt.Sprintf("*/%d * * * *", minutes), nil

	case duration%time.Hour == 0:
		hours := int(duration.Hours())
		if !validHourIntervals[hours] {
			return "", fmt.Errorf("hour intervals must divide evenly into 24 (got %dh)", hours)
		}
		return fmt.Sprintf("0 */%d * * *", hours), nil

	default:
		return "", fmt.Errorf("duration must be whole seconds, minutes, or hours (got %s)", durationStr)
	}
}

// ValidateScheduleInterval validates a schedule interval (clock-aligned duration or cron)
func ValidateScheduleInterval(interval string) error {
	if interval == "" {
		return nil
	}

	if IsCronExpression(interval) {
		if _, err := cronParser.Parse(interval); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		return nil
	}

	_, err := durationToCron(interval)
	return err
}

// gocronLoggerAdapter adapts slog.Logger to gocron.Logger interface
type gocronLoggerAdapter struct {
	logger *slog.Logger
}

func newGocronLoggerAdapter(logger *slog.Logger) gocron.Logger {
	return &gocronLoggerAdapter{logger: logger.With("component", "gocron")}
}

func (a *gocronLoggerAdapter) Debug(msg string, args ...any) {
	a.logger.Debug(msg, args...)
}

func (a *gocronLoggerAdapter) Info(msg string, args ...any) {
	a.logger.Debug(msg, args...)
}

func (a *gocronLoggerAdapter) Warn(msg string, args ...any) {
	a.logger.Warn(msg, args...)
}

func (a *gocronLoggerAdapter) Error(msg string, args ...any) {
	a.logger.Error(msg, args...)
}

// DescribeSchedule provides a human-readable description of the schedule
func DescribeSchedule(interval string, timezone *time.Location) string {
	if timezone == nil {
		timezone = time.UTC
	}

	if IsCronExpression(interval) {
		return fmt.Sprintf("cron: %s (%s)", interval, timezone.String())
	}

	duration, err := time.ParseDuration(interval)
	if err != nil {
		return fmt.Sprintf("invalid: %s", interval)
	}

	cronExpr, err := durationToCron(interval)
	if err != nil {
		return fmt.Sprintf("duration: %s (non-aligned)", interval)
	}

	return fmt.Sprintf("every %s (aligned to clock, cron: %s, %s)", duration, cronExpr, timezone.String())
}
