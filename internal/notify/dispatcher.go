package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	apperrors "github.com/kimhsiao/glimm/backend/internal/errors"
	"github.com/kimhsiao/glimm/backend/internal/logging"
	"github.com/kimhsiao/glimm/backend/internal/models"
	"github.com/kimhsiao/glimm/backend/internal/reminder"
	"github.com/kimhsiao/glimm/backend/internal/telemetry"
)

const (
	// ReminderTag marks every armed reminder job.
	ReminderTag = "reminder"

	rearmTag = "reminder-rearm"
)

// DispatcherConfig wires a Dispatcher. Zero values get defaults.
type DispatcherConfig struct {
	Notifier    Notifier           // default: LogNotifier on the global logger
	Permission  PermissionFunc     // default: AlwaysGranted
	Clock       clockwork.Clock    // default: real clock
	Source      reminder.Source    // default: reminder.DefaultSource
	Location    *time.Location     // default: time.Local
	HorizonDays int                // default: reminder.DefaultHorizonDays
	Metrics     *telemetry.Metrics // optional
}

// Dispatcher keeps at most one reminder schedule armed. Arming a new
// schedule cancels the previous one.
type Dispatcher struct {
	mu         sync.Mutex
	cron       gocron.Scheduler
	scheduler  *reminder.Scheduler
	notifier   Notifier
	permission PermissionFunc
	clock      clockwork.Clock
	src        reminder.Source
	loc        *time.Location
	horizon    int
	metrics    *telemetry.Metrics
	ctx        context.Context
	pending    []time.Time
}

// NewDispatcher creates a Dispatcher. Jobs only fire after Start.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Notifier == nil {
		cfg.Notifier = NewLogNotifier(nil)
	}
	if cfg.Permission == nil {
		cfg.Permission = AlwaysGranted
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Source == nil {
		cfg.Source = reminder.DefaultSource
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = reminder.DefaultHorizonDays
	}

	cron, err := gocron.NewScheduler(
		gocron.WithClock(cfg.Clock),
		gocron.WithLocation(cfg.Location),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder scheduler: %w", err)
	}

	return &Dispatcher{
		cron:       cron,
		scheduler:  reminder.NewScheduler(cfg.Source),
		notifier:   cfg.Notifier,
		permission: cfg.Permission,
		clock:      cfg.Clock,
		src:        cfg.Source,
		loc:        cfg.Location,
		horizon:    cfg.HorizonDays,
		metrics:    cfg.Metrics,
		ctx:        context.Background(),
	}, nil
}

// Start begins firing armed jobs. Deliveries run with ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	d.cron.Start()
	logging.Info("reminder dispatcher started", logging.Fields{"location": d.loc.String()})
}

// Shutdown stops the dispatcher and waits for running deliveries.
func (d *Dispatcher) Shutdown() error {
	return d.cron.Shutdown()
}

// Rearm replaces the armed schedule with a freshly computed one for
// window and returns how many reminders were armed. Pending reminders
// are cancelled first, even when permission is denied or the window is
// disabled.
func (d *Dispatcher) Rearm(ctx context.Context, window models.ReminderWindow) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelLocked()
	d.metrics.SetRemindersArmed(0)

	if !d.permission(ctx) {
		return 0, apperrors.New(apperrors.ErrPermission, "reminders are not permitted")
	}

	now := d.clock.Now().In(d.loc)
	for _, at := range d.scheduler.Schedule(window, d.horizon, now) {
		if err := d.arm(at); err != nil {
			logging.Warn("failed to arm reminder", logging.Fields{
				"at":    at.Format(time.RFC3339),
				"error": err.Error(),
			})
			continue
		}
		d.pending = append(d.pending, at)
	}

	d.metrics.SetRemindersArmed(len(d.pending))
	logging.Info("reminders armed", logging.Fields{
		"count":     len(d.pending),
		"enabled":   window.Enabled,
		"day_start": window.DayStart.String(),
		"day_end":   window.DayEnd.String(),
		"frequency": window.Frequency,
		"horizon":   d.horizon,
	})
	return len(d.pending), nil
}

func (d *Dispatcher) arm(at time.Time) error {
	_, err := d.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(d.deliver, at),
		gocron.WithTags(ReminderTag),
		gocron.WithName(ReminderTag+"-"+at.Format(time.RFC3339)),
	)
	return err
}

func (d *Dispatcher) deliver(at time.Time) {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()

	r := Reminder{
		At:    at,
		Title: reminder.Title,
		Body:  reminder.Message(d.src),
	}
	err := d.notifier.Notify(ctx, r)
	d.metrics.ObserveDelivery(err)
	if err != nil {
		logging.Error("reminder delivery failed", err, logging.Fields{"at": at.Format(time.RFC3339)})
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i, p := range d.pending {
		if p.Equal(at) {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			break
		}
	}
	d.metrics.SetRemindersArmed(len(d.pending))
}

// Cancel drops every pending reminder.
func (d *Dispatcher) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.metrics.SetRemindersArmed(0)
}

func (d *Dispatcher) cancelLocked() {
	d.cron.RemoveByTags(ReminderTag)
	d.pending = nil
}

// Pending returns the armed reminder times in ascending order.
func (d *Dispatcher) Pending() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]time.Time, len(d.pending))
	copy(out, d.pending)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// ScheduleDailyRearm registers a job that recomputes the schedule every
// day shortly after midnight, so the horizon never runs out. windowFn is
// consulted on every run so settings changes are picked up.
func (d *Dispatcher) ScheduleDailyRearm(ctx context.Context, windowFn func() (models.ReminderWindow, error)) error {
	d.cron.RemoveByTags(rearmTag)

	_, err := d.cron.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 5, 0))),
		gocron.NewTask(func() {
			window, err := windowFn()
			if err != nil {
				logging.Error("failed to load reminder window", err)
				return
			}
			if _, err := d.Rearm(ctx, window); err != nil {
				logging.Warn("daily reminder rearm skipped", logging.Fields{"error": err.Error()})
			}
		}),
		gocron.WithTags(rearmTag),
		gocron.WithName(rearmTag),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule daily rearm: %w", err)
	}
	return nil
}

// JobCount reports how many reminder jobs are registered with the
// underlying scheduler.
func (d *Dispatcher) JobCount() int {
	n := 0
	for _, j := range d.cron.Jobs() {
		for _, tag := range j.Tags() {
			if tag == ReminderTag {
				n++
				break
			}
		}
	}
	return n
}
