package infra_mongo_vote

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	infra_mongo_init "github.com/irfanalimd/watchqueue/internal/infra/mongo/init"
	"github.com/irfanalimd/watchqueue/internal/model"
)

type Driver struct {
	votes *mongo.Collection
}

func New(db *mongo.Database) *Driver {
	return &Driver{votes: db.Collection(infra_mongo_init.CollectionVotes)}
}

type voteDoc struct {
	ItemID  primitive.ObjectID  `bson:"item_id"`
	UserID  string              `bson:"user_id"`
	Vote    model.VoteDirection `bson:"vote"`
	VotedAt time.Time           `bson:"voted_at"`
}

func (d voteDoc) toModel() model.Vote {
	return model.Vote{
		ItemID:  d.ItemID.Hex(),
		UserID:  d.UserID,
		Vote:    d.Vote,
		VotedAt: d.VotedAt,
	}
}

// Upsert writes the user's vote for the item, replacing any previous
// direction. The unique (item_id, user_id) index keeps concurrent
// upserts down to a single document.
func (d *Driver) Upsert(ctx context.Context, itemID, userID string, direction model.VoteDirection, at time.Time) (model.Vote, error) {
	oid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return model.Vote{}, err
	}

	var doc voteDoc
	err = d.votes.FindOneAndUpdate(ctx,
		bson.M{"item_id": oid, "user_id": userID},
		bson.M{
			"$set":         bson.M{"vote": direction, "voted_at": at},
			"$setOnInsert": bson.M{"item_id": oid, "user_id": userID},
		},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return model.Vote{}, err
	}
	return doc.toModel(), nil
}

func (d *Driver) Delete(ctx context.Context, itemID, userID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return false, nil
	}
	result, err := d.votes.DeleteOne(ctx, bson.M{"item_id": oid, "user_id": userID})
	if err != nil {
		return false, err
	}
	return result.DeletedCount > 0, nil
}

func (d *Driver) Find(ctx context.Context, itemID, userID string) (*model.Vote, error) {
	oid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return nil, nil
	}
	var doc voteDoc
	err = d.votes.FindOne(ctx, bson.M{"item_id": oid, "user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	vote := doc.toModel()
	return &vote, nil
}

func (d *Driver) ItemVotes(ctx context.Context, itemID string) ([]model.Vote, error) {
	oid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return []model.Vote{}, nil
	}
	cursor, err := d.votes.Find(ctx, bson.M{"item_id": oid})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	votes := make([]model.Vote, 0)
	for cursor.Next(ctx) {
		var doc voteDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		votes = append(votes, doc.toModel())
	}
	return votes, cursor.Err()
}

func (d *Driver) UserVotesForItems(ctx context.Context, itemIDs []string, userID string) (map[string]model.VoteDirection, error) {
	oids := make([]primitive.ObjectID, 0, len(itemIDs))
	for _, id := range itemIDs {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		oids = append(oids, oid)
	}
	result := make(map[string]model.VoteDirection, len(oids))
	if len(oids) == 0 {
		return result, nil
	}

	cursor, err := d.votes.Find(ctx, bson.M{
		"item_id": bson.M{"$in": oids},
		"user_id": userID,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc voteDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result[doc.ItemID.Hex()] = doc.Vote
	}
	return result, cursor.Err()
}

// CountByDirection re-aggregates the item's votes from the source of
// truth instead of trusting cached counters.
func (d *Driver) CountByDirection(ctx context.Context, itemID string) (up, down int, err error) {
	oid, convErr := primitive.ObjectIDFromHex(itemID)
	if convErr != nil {
		return 0, 0, nil
	}

	cursor, err := d.votes.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"item_id": oid}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$vote",
			"count": bson.M{"$sum": 1},
		}}},
	})
	if err != nil {
		return 0, 0, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var row struct {
			ID    model.VoteDirection `bson:"_id"`
			Count int                 `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return 0, 0, err
		}
		switch row.ID {
		case model.VoteUp:
			up = row.Count
		case model.VoteDown:
			down = row.Count
		}
	}
	return up, down, cursor.Err()
}
