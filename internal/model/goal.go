package model

import (
	"time"
)

const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

const (
	MinJoinLimit     = 1
	MaxJoinLimit     = 10
	DefaultJoinLimit = 3
)

type Goal struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	Date             string     `db:"date" json:"date"` // YYYY-MM-DD in the configured timezone
	GoalText         string     `db:"goal_text" json:"goal_text"`
	DueAt            *time.Time `db:"due_at" json:"due_at,omitempty"`
	Priority         string     `db:"priority" json:"priority"`
	SuccessMetric    *string    `db:"success_metric" json:"success_metric,omitempty"`
	Blockers         *string    `db:"blockers" json:"blockers,omitempty"`
	Motivation       *string    `db:"motivation" json:"motivation,omitempty"`
	JoinConditions   *string    `db:"join_conditions" json:"join_conditions,omitempty"`
	JoinLimit        int        `db:"join_limit" json:"join_limit"`
	JoinCurrentCount int        `db:"join_current_count" json:"join_current_count"`
	Completed        bool       `db:"completed" json:"completed"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// SlotAvailability is the normalized view of a goal's join capacity.
type SlotAvailability struct {
	Limit     int `json:"limit"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

func ClampJoinLimit(limit int) int {
	return min(max(limit, MinJoinLimit), MaxJoinLimit)
}

// Slots clamps the stored limit before reading it so a bad row never
// reports negative or oversized capacity.
func (g *Goal) Slots() SlotAvailability {
	limit := ClampJoinLimit(g.JoinLimit)
	used := min(max(g.JoinCurrentCount, 0), limit)
	return SlotAvailability{
		Limit:     limit,
		Used:      used,
		Remaining: limit - used,
	}
}

func (g *Goal) IsFull() bool {
	return g.Slots().Remaining == 0
}

func (g *Goal) IsPastDue(now time.Time) bool {
	return g.DueAt != nil && !g.DueAt.After(now)
}

// IsJoinable reports whether the goal should appear in discovery feeds.
func (g *Goal) IsJoinable(now time.Time) bool {
	return !g.IsPastDue(now) && !g.IsFull()
}

func IsValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// FeedGoal is a goal together with its owner's public profile.
type FeedGoal struct {
	Goal
	Username      string           `db:"username" json:"username"`
	AvatarPath    *string          `db:"avatar_path" json:"-"`
	AvatarURL     string           `db:"-" json:"avatar_url,omitempty"`
	FounderStage  *string          `db:"founder_stage" json:"founder_stage,omitempty"`
	CurrentStreak int              `db:"current_streak" json:"current_streak"`
	Availability  SlotAvailability `db:"-" json:"slots"`
}
