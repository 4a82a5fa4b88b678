package model

import "time"

type QueueItemStatus string

const (
	StatusQueued   QueueItemStatus = "queued"
	StatusWatching QueueItemStatus = "watching"
	StatusWatched  QueueItemStatus = "watched"
	StatusRemoved  QueueItemStatus = "removed"
)

func (s QueueItemStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusWatching, StatusWatched, StatusRemoved:
		return true
	}
	return false
}

type ProviderLink struct {
	ProviderName string `bson:"provider_name" json:"provider_name"`
	Region       string `bson:"region" json:"region"`
	AccessType   string `bson:"access_type" json:"access_type"`
	ProviderLogo string `bson:"provider_logo,omitempty" json:"provider_logo,omitempty"`
	Link         string `bson:"link,omitempty" json:"link,omitempty"`
}

type QueueItem struct {
	ID                string              `bson:"_id,omitempty" json:"id"`
	RoomID            string              `bson:"room_id" json:"room_id"`
	Title             string              `bson:"title" json:"title"`
	TMDBID            int                 `bson:"tmdb_id,omitempty" json:"tmdb_id,omitempty"`
	PosterURL         string              `bson:"poster_url,omitempty" json:"poster_url,omitempty"`
	Overview          string              `bson:"overview,omitempty" json:"overview,omitempty"`
	VoteAverage       float64             `bson:"vote_average,omitempty" json:"vote_average,omitempty"`
	Year              int                 `bson:"year,omitempty" json:"year,omitempty"`
	RuntimeMinutes    int                 `bson:"runtime_minutes,omitempty" json:"runtime_minutes,omitempty"`
	Genres            []string            `bson:"genres" json:"genres"`
	StreamingOn       []string            `bson:"streaming_on" json:"streaming_on"`
	PlayNowURL        string              `bson:"play_now_url,omitempty" json:"play_now_url,omitempty"`
	ProviderLinks     []ProviderLink      `bson:"provider_links" json:"provider_links"`
	ProvidersByRegion map[string][]string `bson:"providers_by_region" json:"providers_by_region"`
	AddedBy           string              `bson:"added_by" json:"added_by"`
	AddedAt           time.Time           `bson:"added_at" json:"added_at"`
	Status            QueueItemStatus     `bson:"status" json:"status"`
	Upvotes           int                 `bson:"upvotes" json:"upvotes"`
	Downvotes         int                 `bson:"downvotes" json:"downvotes"`
	VoteScore         int                 `bson:"vote_score" json:"vote_score"`
}
