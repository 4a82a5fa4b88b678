package infra_mongo_history

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
	"github.com/irfanalimd/watchqueue/pkg/apperr"
)

type Driver struct {
	history *mongo.Collection
}

func New(db *mongo.Database) *Driver {
	return &Driver{history: db.Collection(infra_mongo_init.CollectionWatchHistory)}
}

type historyDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	RoomID    primitive.ObjectID `bson:"room_id"`
	ItemID    primitive.ObjectID `bson:"item_id"`
	WatchedAt time.Time          `bson:"watched_at"`
	Ratings   map[string]int     `bson:"ratings"`
	Notes     string             `bson:"notes,omitempty"`
}

func (d historyDoc) toModel() model.WatchHistory {
	ratings := d.Ratings
	if ratings == nil {
		ratings = map[string]int{}
	}
	return model.WatchHistory{
		ID:        d.ID.Hex(),
		RoomID:    d.RoomID.Hex(),
		ItemID:    d.ItemID.Hex(),
		WatchedAt: d.WatchedAt,
		Ratings:   ratings,
		Notes:     d.Notes,
	}
}

func (d *Driver) Insert(ctx context.Context, entry model.WatchHistory) (model.WatchHistory, error) {
	roomOID, err := primitive.ObjectIDFromHex(entry.RoomID)
	if err != nil {
		return model.WatchHistory{}, apperr.InvalidArgument("invalid room id")
	}
	itemOID, err := primitive.ObjectIDFromHex(entry.ItemID)
	if err != nil {
		return model.WatchHistory{}, apperr.InvalidArgument("invalid item id")
	}

	ratings := entry.Ratings
	if ratings == nil {
		ratings = map[string]int{}
	}
	doc := historyDoc{
		RoomID:    roomOID,
		ItemID:    itemOID,
		WatchedAt: entry.WatchedAt,
		Ratings:   ratings,
		Notes:     entry.Notes,
	}

	result, err := d.history.InsertOne(ctx, doc)
	if err != nil {
		if infra_mongo_init.IsDuplicateKey(err) {
			return model.WatchHistory{}, apperr.Wrap(apperr.CodeConflict, "item already in history", err)
		}
		return model.WatchHistory{}, err
	}

	doc.ID = result.InsertedID.(primitive.ObjectID)
	return doc.toModel(), nil
}

func (d *Driver) Find(ctx context.Context, historyID string) (*model.WatchHistory, error) {
	oid, err := primitive.ObjectIDFromHex(historyID)
	if err != nil {
		return nil, nil
	}
	return d.findOne(ctx, bson.M{"_id": oid})
}

func (d *Driver) FindByItem(ctx context.Context, itemID string) (*model.WatchHistory, error) {
	oid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return nil, nil
	}
	return d.findOne(ctx, bson.M{"item_id": oid})
}

func (d *Driver) ListByRoom(ctx context.Context, roomID string, limit, skip int) ([]model.WatchHistory, error) {
	roomOID, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return []model.WatchHistory{}, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "watched_at", Value: -1}})
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := d.history.Find(ctx, bson.M{"room_id": roomOID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := make([]model.WatchHistory, 0)
	for cursor.Next(ctx) {
		var doc historyDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		entries = append(entries, doc.toModel())
	}
	return entries, cursor.Err()
}

// RecentHistory is ListByRoom without paging, newest first.
func (d *Driver) RecentHistory(ctx context.Context, roomID string, limit int) ([]model.WatchHistory, error) {
	return d.ListByRoom(ctx, roomID, limit, 0)
}

func (d *Driver) SetRating(ctx context.Context, historyID, userID string, rating int) (*model.WatchHistory, error) {
	oid, err := primitive.ObjectIDFromHex(historyID)
	if err != nil {
		return nil, nil
	}
	return d.findOneAndUpdate(ctx, bson.M{"_id": oid},
		bson.M{"$set": bson.M{"ratings." + userID: rating}})
}

func (d *Driver) SetNotes(ctx context.Context, historyID, notes string) (*model.WatchHistory, error) {
	oid, err := primitive.ObjectIDFromHex(historyID)
	if err != nil {
		return nil, nil
	}
	return d.findOneAndUpdate(ctx, bson.M{"_id": oid},
		bson.M{"$set": bson.M{"notes": notes}})
}

// Stats flattens the per-user ratings maps server side so the average
// covers every rating ever given in the room.
func (d *Driver) Stats(ctx context.Context, roomID string) (model.HistoryStats, error) {
	roomOID, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return model.HistoryStats{}, nil
	}

	cursor, err := d.history.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"room_id": roomOID}}},
		{{Key: "$project", Value: bson.M{
			"ratings": bson.M{"$objectToArray": bson.M{"$ifNull": bson.A{"$ratings", bson.M{}}}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":           nil,
			"total_watched": bson.M{"$sum": 1},
			"all_ratings":   bson.M{"$push": "$ratings.v"},
		}}},
		{{Key: "$project", Value: bson.M{
			"total_watched": 1,
			"flat": bson.M{"$reduce": bson.M{
				"input":        "$all_ratings",
				"initialValue": bson.A{},
				"in":           bson.M{"$concatArrays": bson.A{"$$value", "$$this"}},
			}},
		}}},
		{{Key: "$project", Value: bson.M{
			"total_watched": 1,
			"total_ratings": bson.M{"$size": "$flat"},
			"avg_rating":    bson.M{"$avg": "$flat"},
		}}},
	})
	if err != nil {
		return model.HistoryStats{}, err
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		return model.HistoryStats{}, cursor.Err()
	}
	var row struct {
		TotalWatched int      `bson:"total_watched"`
		TotalRatings int      `bson:"total_ratings"`
		AvgRating    *float64 `bson:"avg_rating"`
	}
	if err := cursor.Decode(&row); err != nil {
		return model.HistoryStats{}, err
	}
	stats := model.HistoryStats{
		TotalWatched: row.TotalWatched,
		TotalRatings: row.TotalRatings,
	}
	if row.AvgRating != nil {
		stats.AvgRating = *row.AvgRating
	}
	return stats, nil
}

func (d *Driver) findOne(ctx context.Context, filter bson.M) (*model.WatchHistory, error) {
	var doc historyDoc
	err := d.history.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry := doc.toModel()
	return &entry, nil
}

func (d *Driver) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*model.WatchHistory, error) {
	var doc historyDoc
	err := d.history.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry := doc.toModel()
	return &entry, nil
}
