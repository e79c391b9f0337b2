package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/repository"
)

const jobTimeout = 30 * time.Second

type SchedulerConfig struct {
	SweepInterval       time.Duration
	CheckInReminderTime string // HH:MM in the clock's location
}

// Scheduler runs the background jobs: the reservation expiry sweep, video
// session reminders, the evening check-in reminder and token cleanup.
type Scheduler struct {
	cron                *cron.Cron
	slotService         *SlotService
	sessionService      *SessionService
	goalService         *GoalService
	notificationService *NotificationService
	tokenRepo           repository.TokenRepository
	clock               clock.Clock
	cfg                 SchedulerConfig
}

func NewScheduler(
	slotService *SlotService,
	sessionService *SessionService,
	goalService *GoalService,
	notificationService *NotificationService,
	tokenRepo repository.TokenRepository,
	clk clock.Clock,
	cfg SchedulerConfig,
) *Scheduler {
	return &Scheduler{
		cron:                cron.New(cron.WithLocation(clk.Location()), cron.WithSeconds()),
		slotService:         slotService,
		sessionService:      sessionService,
		goalService:         goalService,
		notificationService: notificationService,
		tokenRepo:           tokenRepo,
		clock:               clk,
		cfg:                 cfg,
	}
}

// Start registers every job and starts the cron loop.
func (s *Scheduler) Start() error {
	sweep := s.cfg.SweepInterval
	if sweep <= 0 {
		sweep = time.Minute
	}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", max(int(sweep.Seconds()), 1)), s.job("slot_sweep", func(ctx context.Context) error {
		_, err := s.slotService.SweepExpired(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("failed to schedule slot sweep: %w", err)
	}

	_, err = s.cron.AddFunc("0 * * * * *", s.job("session_reminders", func(ctx context.Context) error {
		_, err := s.sessionService.SendReminders(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("failed to schedule session reminders: %w", err)
	}

	spec, err := dailySpec(s.cfg.CheckInReminderTime)
	if err != nil {
		return err
	}
	_, err = s.cron.AddFunc(spec, s.job("checkin_reminders", func(ctx context.Context) error {
		_, err := s.RemindCheckIns(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("failed to schedule check-in reminders: %w", err)
	}

	_, err = s.cron.AddFunc("0 30 3 * * *", s.job("token_cleanup", func(ctx context.Context) error {
		removed, err := s.tokenRepo.CleanupExpired(ctx, s.clock.Now())
		if err == nil && removed > 0 {
			slog.Info("expired tokens removed", "count", removed)
		}
		return err
	}))
	if err != nil {
		return fmt.Errorf("failed to schedule token cleanup: %w", err)
	}

	s.cron.Start()
	slog.Info("scheduler started", "jobs", len(s.cron.Entries()), "location", s.clock.Location().String())
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) job(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		err := fn(ctx)
		if err != nil {
			slog.Error("scheduled job failed", "job", name, "error", err)
		}
	}
}

// RemindCheckIns nudges every user whose goal for today is still open.
func (s *Scheduler) RemindCheckIns(ctx context.Context) (int, error) {
	goals, err := s.goalService.OpenToday(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, g := range goals {
		_, err = s.notificationService.Notify(ctx, Notice{
			UserID:   g.UserID,
			Type:     model.NotificationReminder,
			Title:    "Time to check in",
			Message:  "Did you finish today's goal? " + g.GoalText,
			Metadata: model.Metadata{"goal_id": g.ID},
		})
		if err != nil {
			slog.Error("failed to send check-in reminder", "error", err, "user_id", g.UserID)
			continue
		}
		sent++
	}
	return sent, nil
}

func dailySpec(hhmm string) (string, error) {
	hourStr, minuteStr, ok := strings.Cut(hhmm, ":")
	if !ok {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", hhmm)
	}
	hour, err := strconv.Atoi(hourStr)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", hhmm)
	}
	minute, err := strconv.Atoi(minuteStr)
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", hhmm)
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
