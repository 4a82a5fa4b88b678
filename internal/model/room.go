package model

import (
	"strings"
	"time"
)

type SelectionMode string

const (
	SelectionWeightedRandom SelectionMode = "weighted_random"
	SelectionHighestVotes   SelectionMode = "highest_votes"
	SelectionRoundRobin     SelectionMode = "round_robin"
)

func (m SelectionMode) Valid() bool {
	switch m {
	case SelectionWeightedRandom, SelectionHighestVotes, SelectionRoundRobin:
		return true
	}
	return false
}

const DefaultRegion = "US"

type Member struct {
	UserID string `bson:"user_id" json:"user_id"`
	Name   string `bson:"name" json:"name"`
	Avatar string `bson:"avatar" json:"avatar"`
	Region string `bson:"region" json:"region"`
}

// NormalizeName is the uniqueness key for display names inside a room.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func NormalizeRegion(region string) string {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		return DefaultRegion
	}
	return region
}

type RoomSettings struct {
	VotingDurationSeconds int           `bson:"voting_duration_seconds" json:"voting_duration_seconds"`
	SelectionMode         SelectionMode `bson:"selection_mode" json:"selection_mode"`
	AllowRevotes          bool          `bson:"allow_revotes" json:"allow_revotes"`
}

func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		VotingDurationSeconds: 60,
		SelectionMode:         SelectionWeightedRandom,
		AllowRevotes:          true,
	}
}

type Room struct {
	ID        string       `bson:"_id,omitempty" json:"id"`
	Name      string       `bson:"name" json:"name"`
	Code      string       `bson:"code" json:"code"`
	Members   []Member     `bson:"members" json:"members"`
	Admins    []string     `bson:"admins" json:"admins"`
	Settings  RoomSettings `bson:"settings" json:"settings"`
	CreatedAt time.Time    `bson:"created_at" json:"created_at"`
}

func (r *Room) Member(userID string) *Member {
	for i := range r.Members {
		if r.Members[i].UserID == userID {
			return &r.Members[i]
		}
	}
	return nil
}

func (r *Room) IsAdmin(userID string) bool {
	for _, id := range r.Admins {
		if id == userID {
			return true
		}
	}
	return false
}
