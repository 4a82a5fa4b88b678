package infra_mongo_init

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/irfanalimd/watchqueue/internal/config"
)

const (
	CollectionRooms        = "rooms"
	CollectionQueueItems   = "queue_items"
	CollectionVotes        = "votes"
	CollectionReactions    = "reactions"
	CollectionWatchHistory = "watch_history"
)

func MustEstablishConn(cfg config.Mongo) *mongo.Database {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Fatalf("failed to ping mongo: %v", err)
	}

	db := client.Database(cfg.Database)
	if err := EnsureIndexes(ctx, db); err != nil {
		log.Fatalf("failed to create mongo indexes: %v", err)
	}
	return db
}

// EnsureIndexes creates the unique indexes the services rely on for
// correctness, not just speed: room code/name, the (item, user) vote
// pair, the reaction triple and the one-entry-per-item history.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	caseInsensitive := options.Collation{Locale: "en", Strength: 2}

	_, err := db.Collection(CollectionRooms).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("code_unique"),
		},
		{
			Keys: bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetCollation(&caseInsensitive).SetName("name_unique"),
		},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(CollectionQueueItems).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "room_id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "vote_score", Value: -1},
		}},
		{Keys: bson.D{
			{Key: "room_id", Value: 1},
			{Key: "title", Value: 1},
		}},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(CollectionVotes).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "item_id", Value: 1},
				{Key: "user_id", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("item_user_unique"),
		},
		{
			Keys:    bson.D{{Key: "item_id", Value: 1}},
			Options: options.Index().SetName("item_lookup"),
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(CollectionReactions).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "item_id", Value: 1},
			{Key: "user_id", Value: 1},
			{Key: "reaction", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("item_user_reaction_unique"),
	})
	if err != nil {
		return err
	}

	_, err = db.Collection(CollectionWatchHistory).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "room_id", Value: 1},
			{Key: "watched_at", Value: -1},
		}},
		{
			Keys:    bson.D{{Key: "item_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("item_unique"),
		},
	})
	return err
}

// IsDuplicateKey reports whether err is a unique index violation.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// DuplicateIndexName extracts the violated index name, when present,
// so repositories can tell a code collision from a name collision.
func DuplicateIndexName(err error) string {
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == 11000 {
				return indexNameFromMessage(we.Message)
			}
		}
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 11000 {
		return indexNameFromMessage(cmdErr.Message)
	}
	return ""
}

func indexNameFromMessage(msg string) string {
	const marker = "index: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return ""
	}
	rest := msg[i+len(marker):]
	if j := strings.IndexByte(rest, ' '); j >= 0 {
		return rest[:j]
	}
	return rest
}
