package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/validation"
)

const DefaultHistoryLimit = 30

var ErrInvalidPriority = &validation.Error{Field: "priority", Message: "priority must be low, medium, high or critical"}

// GoalInput carries the user-editable goal fields. JoinLimit is only read on
// create; capacity is fixed afterwards.
type GoalInput struct {
	GoalText       string     `json:"goal_text"`
	DueAt          *time.Time `json:"due_at"`
	Priority       string     `json:"priority"`
	SuccessMetric  *string    `json:"success_metric"`
	Blockers       *string    `json:"blockers"`
	Motivation     *string    `json:"motivation"`
	JoinConditions *string    `json:"join_conditions"`
	JoinLimit      *int       `json:"join_limit"`
}

type CheckInResult struct {
	Goal    *model.Goal    `json:"goal"`
	Profile *model.Profile `json:"profile,omitempty"`
}

type GoalService struct {
	repo          repository.GoalRepository
	streakService *StreakService
	fileService   *FileService
	clock         clock.Clock
	events        events.Publisher
	feedLimit     int
}

func NewGoalService(
	repo repository.GoalRepository,
	streakService *StreakService,
	fileService *FileService,
	clk clock.Clock,
	pub events.Publisher,
	feedLimit int,
) *GoalService {
	if feedLimit <= 0 {
		feedLimit = 20
	}
	return &GoalService{
		repo:          repo,
		streakService: streakService,
		fileService:   fileService,
		clock:         clk,
		events:        pub,
		feedLimit:     feedLimit,
	}
}

// Create posts today's goal for the user.
func (s *GoalService) Create(ctx context.Context, userID string, in GoalInput) (*model.Goal, error) {
	goal := &model.Goal{
		UserID:    userID,
		Date:      s.clock.Today(),
		JoinLimit: model.DefaultJoinLimit,
	}
	if in.JoinLimit != nil {
		goal.JoinLimit = model.ClampJoinLimit(*in.JoinLimit)
	}

	err := applyGoalInput(goal, in)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	goal.CreatedAt = now
	goal.UpdatedAt = now

	err = s.repo.Create(ctx, goal)
	if err != nil {
		if errors.Is(err, repository.ErrGoalAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create goal: %w", err)
	}

	slog.Info("goal posted", "goal_id", goal.ID, "user_id", userID, "date", goal.Date, "join_limit", goal.JoinLimit)
	s.events.Publish(ctx, events.Event{Type: events.GoalPosted, Payload: goal})
	return goal, nil
}

func applyGoalInput(goal *model.Goal, in GoalInput) error {
	text, err := validation.RequiredText("goal_text", in.GoalText, validation.MaxGoalTextLength)
	if err != nil {
		return err
	}

	priority := strings.TrimSpace(in.Priority)
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !model.IsValidPriority(priority) {
		return ErrInvalidPriority
	}

	fields := []struct {
		name string
		in   *string
		out  **string
	}{
		{"success_metric", in.SuccessMetric, &goal.SuccessMetric},
		{"blockers", in.Blockers, &goal.Blockers},
		{"motivation", in.Motivation, &goal.Motivation},
		{"join_conditions", in.JoinConditions, &goal.JoinConditions},
	}
	for _, f := range fields {
		v, err := validation.OptionalText(f.name, f.in, validation.MaxLongTextLength)
		if err != nil {
			return err
		}
		*f.out = v
	}

	goal.GoalText = text
	goal.Priority = priority
	if in.DueAt != nil {
		due := in.DueAt.UTC()
		goal.DueAt = &due
	} else {
		goal.DueAt = nil
	}
	return nil
}

// Today returns the user's goal for the current day.
func (s *GoalService) Today(ctx context.Context, userID string) (*model.Goal, error) {
	return s.repo.ByUserAndDate(ctx, userID, s.clock.Today())
}

func (s *GoalService) ByID(ctx context.Context, goalID string) (*model.Goal, error) {
	return s.repo.ByID(ctx, goalID)
}

func (s *GoalService) History(ctx context.Context, userID string, limit int) ([]*model.Goal, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	return s.repo.History(ctx, userID, limit)
}

// Update rewrites the content fields of one of the user's goals.
func (s *GoalService) Update(ctx context.Context, userID, goalID string, in GoalInput) (*model.Goal, error) {
	goal, err := s.owned(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}

	err = applyGoalInput(goal, in)
	if err != nil {
		return nil, err
	}
	goal.UpdatedAt = s.clock.Now()

	err = s.repo.Update(ctx, goal)
	if err != nil {
		return nil, err
	}
	return goal, nil
}

func (s *GoalService) Delete(ctx context.Context, userID, goalID string) error {
	err := s.repo.Delete(ctx, goalID, userID)
	if err != nil {
		return err
	}

	slog.Info("goal deleted", "goal_id", goalID, "user_id", userID)
	return nil
}

// CheckIn records whether the user got their goal done. Completing today's
// goal extends the streak once; reporting it not done resets the streak.
func (s *GoalService) CheckIn(ctx context.Context, userID, goalID string, done bool) (*CheckInResult, error) {
	transitioned, err := s.repo.SetCompleted(ctx, goalID, userID, done, s.clock.Now())
	if err != nil {
		return nil, err
	}

	goal, err := s.repo.ByID(ctx, goalID)
	if err != nil {
		return nil, err
	}

	result := &CheckInResult{Goal: goal}

	if done {
		result.Profile, err = s.streakService.OnGoalCompleted(ctx, userID, goal, transitioned)
		if err != nil {
			return nil, err
		}
		if transitioned {
			s.events.Publish(ctx, events.Event{
				Type:    events.GoalCompleted,
				UserIDs: []string{userID},
				Payload: goal,
			})
		}
		return result, nil
	}

	result.Profile, err = s.streakService.OnGoalMarkedIncomplete(ctx, userID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// OpenToday lists today's goals that have not been completed.
func (s *GoalService) OpenToday(ctx context.Context) ([]*model.Goal, error) {
	return s.repo.OpenForDate(ctx, s.clock.Today())
}

// Feed lists today's joinable goals from other users.
func (s *GoalService) Feed(ctx context.Context, viewerID string) ([]*model.FeedGoal, error) {
	goals, err := s.repo.Feed(ctx, viewerID, s.clock.Today(), s.clock.Now(), s.feedLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed: %w", err)
	}

	for _, g := range goals {
		g.Availability = g.Slots()
		if g.AvatarPath != nil && s.fileService != nil {
			g.AvatarURL = s.fileService.URL(ctx, *g.AvatarPath, true)
		}
	}
	return goals, nil
}

func (s *GoalService) owned(ctx context.Context, userID, goalID string) (*model.Goal, error) {
	goal, err := s.repo.ByID(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if goal.UserID != userID {
		return nil, repository.ErrGoalNotFound
	}
	return goal, nil
}
