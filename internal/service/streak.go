package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/events"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/repository"
)

// StreakService keeps the profile streak counters in step with goal
// check-ins. Missed days are not decayed.
type StreakService struct {
	profileRepo repository.ProfileRepository
	clock       clock.Clock
	events      events.Publisher
}

func NewStreakService(profileRepo repository.ProfileRepository, clk clock.Clock, pub events.Publisher) *StreakService {
	return &StreakService{
		profileRepo: profileRepo,
		clock:       clk,
		events:      pub,
	}
}

// OnGoalCompleted bumps the streak when today's goal just went from open to
// completed. transitioned is false for a repeated completion, which counts
// nothing. It returns the profile after the update, or nil if unchanged.
func (s *StreakService) OnGoalCompleted(ctx context.Context, userID string, goal *model.Goal, transitioned bool) (*model.Profile, error) {
	if !transitioned || goal.Date != s.clock.Today() {
		return nil, nil
	}

	profile, err := s.profileRepo.IncrementStreak(ctx, userID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to increment streak: %w", err)
	}

	slog.Info("streak incremented", "user_id", userID, "current", profile.CurrentStreak, "longest", profile.LongestStreak)
	s.publish(ctx, profile)
	return profile, nil
}

// OnGoalMarkedIncomplete resets the current streak. The longest streak is kept.
func (s *StreakService) OnGoalMarkedIncomplete(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := s.profileRepo.ResetStreak(ctx, userID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to reset streak: %w", err)
	}

	s.publish(ctx, profile)
	return profile, nil
}

func (s *StreakService) publish(ctx context.Context, profile *model.Profile) {
	s.events.Publish(ctx, events.Event{
		Type:    events.StreakUpdated,
		UserIDs: []string{profile.UserID},
		Payload: map[string]int{
			"current_streak": profile.CurrentStreak,
			"longest_streak": profile.LongestStreak,
		},
	})
}
