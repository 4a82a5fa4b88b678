package model

import "time"

type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

func (d VoteDirection) Valid() bool {
	return d == VoteUp || d == VoteDown
}

// Vote rows are the source of truth for the denormalized counts on the
// owning queue item. At most one live vote per (item, user) pair.
type Vote struct {
	ItemID  string        `bson:"item_id" json:"item_id"`
	UserID  string        `bson:"user_id" json:"user_id"`
	Vote    VoteDirection `bson:"vote" json:"vote"`
	VotedAt time.Time     `bson:"voted_at" json:"voted_at"`
}

type VoteCounts struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	VoteScore int `json:"vote_score"`
}
