package infra_mongo_reaction

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	infra_mongo_init "github.com/irfanalimd/watchqueue/internal/infra/mongo/init"
	"github.com/irfanalimd/watchqueue/internal/model"
	"github.com/irfanalimd/watchqueue/pkg/apperr"
)

type Driver struct {
	reactions *mongo.Collection
}

func New(db *mongo.Database) *Driver {
	return &Driver{reactions: db.Collection(infra_mongo_init.CollectionReactions)}
}

type reactionDoc struct {
	ItemID    primitive.ObjectID `bson:"item_id"`
	UserID    string             `bson:"user_id"`
	Reaction  string             `bson:"reaction"`
	ReactedAt time.Time          `bson:"reacted_at"`
}

func (d *Driver) Exists(ctx context.Context, itemID, userID, kind string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return false, nil
	}
	n, err := d.reactions.CountDocuments(ctx, bson.M{
		"item_id":  oid,
		"user_id":  userID,
		"reaction": kind,
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *Driver) Insert(ctx context.Context, reaction model.Reaction) error {
	oid, err := primitive.ObjectIDFromHex(reaction.ItemID)
	if err != nil {
		return apperr.NotFound("queue item not found")
	}
	_, err = d.reactions.InsertOne(ctx, reactionDoc{
		ItemID:    oid,
		UserID:    reaction.UserID,
		Reaction:  reaction.Reaction,
		ReactedAt: reaction.ReactedAt,
	})
	if err != nil {
		if infra_mongo_init.IsDuplicateKey(err) {
			return apperr.Wrap(apperr.CodeConflict, "reaction already set", err)
		}
		return err
	}
	return nil
}

func (d *Driver) Delete(ctx context.Context, itemID, userID, kind string) error {
	oid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return nil
	}
	_, err = d.reactions.DeleteOne(ctx, bson.M{
		"item_id":  oid,
		"user_id":  userID,
		"reaction": kind,
	})
	return err
}

// ByRoom joins reactions to the room's items and folds them into the
// item -> kind -> users shape clients render from.
func (d *Driver) ByRoom(ctx context.Context, roomID string) (model.RoomReactions, error) {
	result := model.RoomReactions{}
	roomOID, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return result, nil
	}

	cursor, err := d.reactions.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         infra_mongo_init.CollectionQueueItems,
			"localField":   "item_id",
			"foreignField": "_id",
			"as":           "item",
		}}},
		{{Key: "$unwind", Value: "$item"}},
		{{Key: "$match", Value: bson.M{"item.room_id": roomOID}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc reactionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		itemID := doc.ItemID.Hex()
		byKind, ok := result[itemID]
		if !ok {
			byKind = map[string][]string{}
			result[itemID] = byKind
		}
		byKind[doc.Reaction] = append(byKind[doc.Reaction], doc.UserID)
	}
	return result, cursor.Err()
}
