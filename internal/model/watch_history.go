package model

import "time"

// WatchHistory holds one entry per watched item (unique on item_id).
type WatchHistory struct {
	ID        string         `bson:"_id,omitempty" json:"id"`
	RoomID    string         `bson:"room_id" json:"room_id"`
	ItemID    string         `bson:"item_id" json:"item_id"`
	WatchedAt time.Time      `bson:"watched_at" json:"watched_at"`
	Ratings   map[string]int `bson:"ratings" json:"ratings"`
	Notes     string         `bson:"notes,omitempty" json:"notes,omitempty"`
}

type HistoryStats struct {
	TotalWatched int     `json:"total_watched"`
	AvgRating    float64 `json:"avg_rating"`
	TotalRatings int     `json:"total_ratings"`
}

type UserSelectionStats struct {
	ItemsAdded  int     `json:"items_added"`
	ItemsPicked int     `json:"items_picked"`
	PickRate    float64 `json:"pick_rate"`
}

type SelectionStats struct {
	TotalWatched int                           `json:"total_watched"`
	UserStats    map[string]UserSelectionStats `json:"user_stats"`
}

// VotingRound is a pure timestamp record; nothing enforces the timer
// server side, clients run the countdown.
type VotingRound struct {
	RoomID          string    `json:"room_id"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds int       `json:"duration_seconds"`
	Status          string    `json:"status"`
}
