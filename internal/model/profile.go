package model

import "time"

const (
	StageIdea         = "idea"
	StageMVP          = "mvp"
	StageEarlyRevenue = "early_revenue"
	StageScaling      = "scaling"
	StageEstablished  = "established"
)

var FounderStages = []string{StageIdea, StageMVP, StageEarlyRevenue, StageScaling, StageEstablished}

type Profile struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Username      string    `db:"username" json:"username"`
	AvatarPath    *string   `db:"avatar_path" json:"-"`
	Bio           *string   `db:"bio" json:"bio,omitempty"`
	FounderStage  *string   `db:"founder_stage" json:"founder_stage,omitempty"`
	CurrentStreak int       `db:"current_streak" json:"current_streak"`
	LongestStreak int       `db:"longest_streak" json:"longest_streak"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`

	// Computed fields (not in database)
	AvatarURL string `db:"-" json:"avatar_url,omitempty"`
}

func IsValidFounderStage(stage string) bool {
	for _, s := range FounderStages {
		if s == stage {
			return true
		}
	}
	return false
}
