package infra_mongo_room

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
	usecase_room "github.com/irfanalimd/watchqueue/internal/usecase/room"
	"github.com/irfanalimd/watchqueue/pkg/apperr"
)

type Driver struct {
	rooms *mongo.Collection
	db    *mongo.Database
}

func New(db *mongo.Database) *Driver {
	return &Driver{
		rooms: db.Collection(infra_mongo_init.CollectionRooms),
		db:    db,
	}
}

type roomDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Code      string             `bson:"code"`
	Members   []model.Member     `bson:"members"`
	Admins    []string           `bson:"admins"`
	Settings  model.RoomSettings `bson:"settings"`
	CreatedAt time.Time          `bson:"created_at"`
}

func (d roomDoc) toModel() model.Room {
	admins := d.Admins
	if admins == nil {
		admins = []string{}
	}
	members := d.Members
	if members == nil {
		members = []model.Member{}
	}
	return model.Room{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Code:      d.Code,
		Members:   members,
		Admins:    admins,
		Settings:  d.Settings,
		CreatedAt: d.CreatedAt,
	}
}

func fromModel(room model.Room) roomDoc {
	return roomDoc{
		Name:      room.Name,
		Code:      room.Code,
		Members:   room.Members,
		Admins:    room.Admins,
		Settings:  room.Settings,
		CreatedAt: room.CreatedAt,
	}
}

func (d *Driver) Insert(ctx context.Context, room model.Room) (model.Room, error) {
	doc := fromModel(room)
	result, err := d.rooms.InsertOne(ctx, doc)
	if err != nil {
		if infra_mongo_init.IsDuplicateKey(err) {
			switch infra_mongo_init.DuplicateIndexName(err) {
			case "name_unique":
				return model.Room{}, apperr.Wrap(apperr.CodeConflict, "room name already exists", err)
			default:
				return model.Room{}, apperr.Wrap(apperr.CodeConflict, "room code already exists", err)
			}
		}
		return model.Room{}, err
	}

	doc.ID = result.InsertedID.(primitive.ObjectID)
	return doc.toModel(), nil
}

func (d *Driver) Find(ctx context.Context, roomID string) (*model.Room, error) {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, nil
	}
	return d.findOne(ctx, bson.M{"_id": oid})
}

func (d *Driver) FindByCode(ctx context.Context, code string) (*model.Room, error) {
	return d.findOne(ctx, bson.M{"code": code})
}

func (d *Driver) FindByName(ctx context.Context, name string) (*model.Room, error) {
	collation := options.Collation{Locale: "en", Strength: 2}
	var doc roomDoc
	err := d.rooms.FindOne(ctx, bson.M{"name": name},
		options.FindOne().SetCollation(&collation)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	room := doc.toModel()
	return &room, nil
}

func (d *Driver) Update(ctx context.Context, roomID string, update usecase_room.RoomUpdate) (*model.Room, error) {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, nil
	}

	set := bson.M{}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Settings != nil {
		set["settings"] = *update.Settings
	}
	if len(set) == 0 {
		return d.findOne(ctx, bson.M{"_id": oid})
	}

	return d.findOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
}

func (d *Driver) Delete(ctx context.Context, roomID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return false, nil
	}

	result, err := d.rooms.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, err
	}
	return result.DeletedCount > 0, nil
}

func (d *Driver) ListByMember(ctx context.Context, userID string) ([]model.Room, error) {
	cursor, err := d.rooms.Find(ctx, bson.M{"members.user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	rooms := make([]model.Room, 0)
	for cursor.Next(ctx) {
		var doc roomDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		rooms = append(rooms, doc.toModel())
	}
	return rooms, cursor.Err()
}

func (d *Driver) PushMember(ctx context.Context, roomID string, member model.Member) (*model.Room, error) {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, nil
	}
	return d.findOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{
		"$push": bson.M{"members": member},
	})
}

func (d *Driver) SetMember(ctx context.Context, roomID string, member model.Member) (*model.Room, error) {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, nil
	}
	return d.findOneAndUpdate(ctx,
		bson.M{"_id": oid, "members.user_id": member.UserID},
		bson.M{"$set": bson.M{
			"members.$.name":   member.Name,
			"members.$.avatar": member.Avatar,
			"members.$.region": member.Region,
		}})
}

func (d *Driver) PullMember(ctx context.Context, roomID, userID string) (*model.Room, error) {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, nil
	}
	return d.findOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{
		"$pull": bson.M{
			"members": bson.M{"user_id": userID},
			"admins":  userID,
		},
	})
}

func (d *Driver) AddAdmin(ctx context.Context, roomID, userID string) (*model.Room, error) {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, nil
	}
	return d.findOneAndUpdate(ctx,
		bson.M{"_id": oid, "members.user_id": userID},
		bson.M{"$addToSet": bson.M{"admins": userID}})
}

// DeleteRoomData cleans up the room's dependent collections. Votes are
// keyed by item id, so item ids are collected before the items go.
func (d *Driver) DeleteRoomData(ctx context.Context, roomID string) error {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil
	}

	items := d.db.Collection(infra_mongo_init.CollectionQueueItems)
	itemIDs, err := items.Distinct(ctx, "_id", bson.M{"room_id": oid})
	if err != nil {
		return err
	}

	if _, err := items.DeleteMany(ctx, bson.M{"room_id": oid}); err != nil {
		return err
	}
	history := d.db.Collection(infra_mongo_init.CollectionWatchHistory)
	if _, err := history.DeleteMany(ctx, bson.M{"room_id": oid}); err != nil {
		return err
	}

	if len(itemIDs) > 0 {
		votes := d.db.Collection(infra_mongo_init.CollectionVotes)
		if _, err := votes.DeleteMany(ctx, bson.M{"item_id": bson.M{"$in": itemIDs}}); err != nil {
			return err
		}
		reactions := d.db.Collection(infra_mongo_init.CollectionReactions)
		if _, err := reactions.DeleteMany(ctx, bson.M{"item_id": bson.M{"$in": itemIDs}}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) findOne(ctx context.Context, filter bson.M) (*model.Room, error) {
	var doc roomDoc
	err := d.rooms.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	room := doc.toModel()
	return &room, nil
}

func (d *Driver) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*model.Room, error) {
	var doc roomDoc
	err := d.rooms.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	room := doc.toModel()
	return &room, nil
}
