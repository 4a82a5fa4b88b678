package model

import "time"

// AllowedReactions is the fixed set of emoji reaction kinds.
var AllowedReactions = []string{"fire", "sleepy", "laughing", "scream", "hundred"}

func ReactionAllowed(kind string) bool {
	for _, r := range AllowedReactions {
		if r == kind {
			return true
		}
	}
	return false
}

// Reaction presence means active; toggling flips existence of the row.
type Reaction struct {
	ItemID    string    `bson:"item_id" json:"item_id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Reaction  string    `bson:"reaction" json:"reaction"`
	ReactedAt time.Time `bson:"reacted_at" json:"reacted_at"`
}

// RoomReactions maps item id -> reaction kind -> user ids.
type RoomReactions map[string]map[string][]string
