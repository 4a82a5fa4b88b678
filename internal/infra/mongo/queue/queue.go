package infra_mongo_queue

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	infra_mongo_init "github.com/irfanalimd/watchqueue/internal/infra/mongo/init"
	"github.com/irfanalimd/watchqueue/internal/model"
	usecase_queue "github.com/irfanalimd/watchqueue/internal/usecase/queue"
	"github.com/irfanalimd/watchqueue/pkg/apperr"
)

// Driver backs the queue repository and the narrower read views the
// vote, selection and history usecases declare over the same collection.
type Driver struct {
	items *mongo.Collection
}

func New(db *mongo.Database) *Driver {
	return &Driver{items: db.Collection(infra_mongo_init.CollectionQueueItems)}
}

type itemDoc struct {
	ID                primitive.ObjectID    `bson:"_id,omitempty"`
	RoomID            primitive.ObjectID    `bson:"room_id"`
	Title             string                `bson:"title"`
	TMDBID            int                   `bson:"tmdb_id,omitempty"`
	PosterURL         string                `bson:"poster_url,omitempty"`
	Overview          string                `bson:"overview,omitempty"`
	VoteAverage       float64               `bson:"vote_average,omitempty"`
	Year              int                   `bson:"year,omitempty"`
	RuntimeMinutes    int                   `bson:"runtime_minutes,omitempty"`
	Genres            []string              `bson:"genres"`
	StreamingOn       []string              `bson:"streaming_on"`
	PlayNowURL        string                `bson:"play_now_url,omitempty"`
	ProviderLinks     []model.ProviderLink  `bson:"provider_links"`
	ProvidersByRegion map[string][]string   `bson:"providers_by_region"`
	AddedBy           string                `bson:"added_by"`
	AddedAt           time.Time             `bson:"added_at"`
	Status            model.QueueItemStatus `bson:"status"`
	Upvotes           int                   `bson:"upvotes"`
	Downvotes         int                   `bson:"downvotes"`
	VoteScore         int                   `bson:"vote_score"`
}

func (d itemDoc) toModel() model.QueueItem {
	genres := d.Genres
	if genres == nil {
		genres = []string{}
	}
	streaming := d.StreamingOn
	if streaming == nil {
		streaming = []string{}
	}
	links := d.ProviderLinks
	if links == nil {
		links = []model.ProviderLink{}
	}
	byRegion := d.ProvidersByRegion
	if byRegion == nil {
		byRegion = map[string][]string{}
	}
	return model.QueueItem{
		ID:                d.ID.Hex(),
		RoomID:            d.RoomID.Hex(),
		Title:             d.Title,
		TMDBID:            d.TMDBID,
		PosterURL:         d.PosterURL,
		Overview:          d.Overview,
		VoteAverage:       d.VoteAverage,
		Year:              d.Year,
		RuntimeMinutes:    d.RuntimeMinutes,
		Genres:            genres,
		StreamingOn:       streaming,
		PlayNowURL:        d.PlayNowURL,
		ProviderLinks:     links,
		ProvidersByRegion: byRegion,
		AddedBy:           d.AddedBy,
		AddedAt:           d.AddedAt,
		Status:            d.Status,
		Upvotes:           d.Upvotes,
		Downvotes:         d.Downvotes,
		VoteScore:         d.VoteScore,
	}
}

func (d *Driver) Insert(ctx context.Context, item model.QueueItem) (model.QueueItem, error) {
	roomOID, err := primitive.ObjectIDFromHex(item.RoomID)
	if err != nil {
		return model.QueueItem{}, apperr.InvalidArgument("invalid room id")
	}

	doc := itemDoc{
		RoomID:            roomOID,
		Title:             item.Title,
		TMDBID:            item.TMDBID,
		PosterURL:         item.PosterURL,
		Overview:          item.Overview,
		VoteAverage:       item.VoteAverage,
		Year:              item.Year,
		RuntimeMinutes:    item.RuntimeMinutes,
		Genres:            item.Genres,
		StreamingOn:       item.StreamingOn,
		PlayNowURL:        item.PlayNowURL,
		ProviderLinks:     item.ProviderLinks,
		ProvidersByRegion: item.ProvidersByRegion,
		AddedBy:           item.AddedBy,
		AddedAt:           item.AddedAt,
		Status:            item.Status,
		Upvotes:           item.Upvotes,
		Downvotes:         item.Downvotes,
		VoteScore:         item.VoteScore,
	}

	result, err := d.items.InsertOne(ctx, doc)
	if err != nil {
		if infra_mongo_init.IsDuplicateKey(err) {
			return model.QueueItem{}, apperr.Wrap(apperr.CodeConflict, "item already queued", err)
		}
		return model.QueueItem{}, err
	}

	doc.ID = result.InsertedID.(primitive.ObjectID)
	return doc.toModel(), nil
}

func (d *Driver) Find(ctx context.Context, itemID string) (*model.QueueItem, error) {
	oid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return nil, nil
	}
	return d.findOne(ctx, bson.M{"_id": oid})
}

func (d *Driver) FindActiveByTitle(ctx context.Context, roomID, title string) (*model.QueueItem, error) {
	roomOID, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, nil
	}
	return d.findOne(ctx, bson.M{
		"room_id": roomOID,
		"title":   primitive.Regex{Pattern: "^" + regexp.QuoteMeta(title) + "$", Options: "i"},
		"status":  bson.M{"$ne": model.StatusRemoved},
	})
}

func (d *Driver) FindActiveByTMDBID(ctx context.Context, roomID string, tmdbID int) (*model.QueueItem, error) {
	roomOID, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, nil
	}
	return d.findOne(ctx, bson.M{
		"room_id": roomOID,
		"tmdb_id": tmdbID,
		"status":  bson.M{"$ne": model.StatusRemoved},
	})
}

func (d *Driver) List(ctx context.Context, roomID string, filter usecase_queue.ListFilter) ([]model.QueueItem, error) {
	roomOID, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return []model.QueueItem{}, nil
	}

	query := bson.M{"room_id": roomOID}
	if filter.Status != "" {
		query["status"] = filter.Status
	} else {
		query["status"] = bson.M{"$ne": model.StatusRemoved}
	}
	if filter.Provider != "" {
		query["streaming_on"] = primitive.Regex{
			Pattern: regexp.QuoteMeta(filter.Provider), Options: "i",
		}
	}
	if filter.AvailableNow {
		query["streaming_on.0"] = bson.M{"$exists": true}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "vote_score", Value: -1}, {Key: "added_at", Value: 1}})
	if filter.Skip > 0 {
		opts.SetSkip(int64(filter.Skip))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	return d.findMany(ctx, query, opts)
}

func (d *Driver) Update(ctx context.Context, itemID string, update usecase_queue.ItemUpdate) (*model.QueueItem, error) {
	oid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return nil, nil
	}

	set := bson.M{}
	if update.Status != nil {
		set["status"] = *update.Status
	}
	if update.PosterURL != nil {
		set["poster_url"] = *update.PosterURL
	}
	if update.Overview != nil {
		set["overview"] = *update.Overview
	}
	if update.VoteAverage != nil {
		set["vote_average"] = *update.VoteAverage
	}
	if update.Year != nil {
		set["year"] = *update.Year
	}
	if update.RuntimeMinutes != nil {
		set["runtime_minutes"] = *update.RuntimeMinutes
	}
	if update.Genres != nil {
		set["genres"] = update.Genres
	}
	if update.StreamingOn != nil {
		set["streaming_on"] = update.StreamingOn
	}
	if update.PlayNowURL != nil {
		set["play_now_url"] = *update.PlayNowURL
	}
	if update.ProviderLinks != nil {
		set["provider_links"] = update.ProviderLinks
	}
	if update.ProvidersByRegion != nil {
		set["providers_by_region"] = update.ProvidersByRegion
	}
	if update.TMDBID != nil {
		set["tmdb_id"] = *update.TMDBID
	}
	if len(set) == 0 {
		return d.findOne(ctx, bson.M{"_id": oid})
	}

	var doc itemDoc
	err = d.items.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	item := doc.toModel()
	return &item, nil
}

// Exists reports whether a non-removed item with the id is present.
func (d *Driver) Exists(ctx context.Context, itemID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return false, nil
	}
	n, err := d.items.CountDocuments(ctx,
		bson.M{"_id": oid, "status": bson.M{"$ne": model.StatusRemoved}})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *Driver) Counts(ctx context.Context, itemID string) (model.VoteCounts, bool, error) {
	item, err := d.Find(ctx, itemID)
	if err != nil {
		return model.VoteCounts{}, false, err
	}
	if item == nil {
		return model.VoteCounts{}, false, nil
	}
	return model.VoteCounts{
		Upvotes:   item.Upvotes,
		Downvotes: item.Downvotes,
		VoteScore: item.VoteScore,
	}, true, nil
}

func (d *Driver) SetVoteCounts(ctx context.Context, itemID string, upvotes, downvotes int) error {
	oid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return apperr.NotFound("queue item not found")
	}
	_, err = d.items.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"upvotes":    upvotes,
		"downvotes":  downvotes,
		"vote_score": upvotes - downvotes,
	}})
	return err
}

func (d *Driver) RoomItemIDs(ctx context.Context, roomID string) ([]string, error) {
	roomOID, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return []string{}, nil
	}
	raw, err := d.items.Distinct(ctx, "_id", bson.M{"room_id": roomOID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if oid, ok := v.(primitive.ObjectID); ok {
			ids = append(ids, oid.Hex())
		}
	}
	return ids, nil
}

// QueuedItems returns the room's queued items pre-sorted for selection:
// highest vote score first, oldest first among ties.
func (d *Driver) QueuedItems(ctx context.Context, roomID string) ([]model.QueueItem, error) {
	return d.List(ctx, roomID, usecase_queue.ListFilter{Status: model.StatusQueued})
}

func (d *Driver) ItemsByIDs(ctx context.Context, itemIDs []string) ([]model.QueueItem, error) {
	oids := make([]primitive.ObjectID, 0, len(itemIDs))
	for _, id := range itemIDs {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		oids = append(oids, oid)
	}
	if len(oids) == 0 {
		return []model.QueueItem{}, nil
	}
	return d.findMany(ctx, bson.M{"_id": bson.M{"$in": oids}}, options.Find())
}

func (d *Driver) AllRoomItems(ctx context.Context, roomID string) ([]model.QueueItem, error) {
	roomOID, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return []model.QueueItem{}, nil
	}
	return d.findMany(ctx, bson.M{"room_id": roomOID}, options.Find())
}

func (d *Driver) FindInRoom(ctx context.Context, itemID, roomID string) (*model.QueueItem, error) {
	oid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return nil, nil
	}
	roomOID, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, nil
	}
	return d.findOne(ctx, bson.M{"_id": oid, "room_id": roomOID})
}

func (d *Driver) findOne(ctx context.Context, filter bson.M) (*model.QueueItem, error) {
	var doc itemDoc
	err := d.items.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	item := doc.toModel()
	return &item, nil
}

func (d *Driver) findMany(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.QueueItem, error) {
	cursor, err := d.items.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]model.QueueItem, 0)
	for cursor.Next(ctx) {
		var doc itemDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		items = append(items, doc.toModel())
	}
	return items, cursor.Err()
}
