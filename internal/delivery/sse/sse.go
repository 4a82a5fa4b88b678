package sse

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	infra_mongo_init "github.com/irfanalimd/watchqueue/internal/infra/mongo/init"
)

const keepaliveInterval = 30 * time.Second

// Controller streams MongoDB change stream events for a room as
// Server-Sent Events. It reads collections directly: the feed mirrors
// storage, not the usecase layer.
type Controller struct {
	db     *mongo.Database
	logger *slog.Logger
}

func New(db *mongo.Database) *Controller {
	return &Controller{
		db:     db,
		logger: slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	events := router.Group("/events")
	{
		events.GET("/votes/:room_id", c.voteEvents)
		events.GET("/queue/:room_id", c.queueEvents)
		events.GET("/room/:room_id", c.roomEvents)
	}
}

type changeDoc struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID primitive.ObjectID `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument      bson.M `bson:"fullDocument"`
	UpdateDescription *struct {
		UpdatedFields bson.M   `bson:"updatedFields"`
		RemovedFields []string `bson:"removedFields"`
	} `bson:"updateDescription"`
}

// serialize flattens a change event into the wire shape: hex ids,
// RFC3339 timestamps, plain JSON values.
func serialize(change changeDoc) map[string]interface{} {
	event := map[string]interface{}{
		"operation": change.OperationType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if !change.DocumentKey.ID.IsZero() {
		event["document_id"] = change.DocumentKey.ID.Hex()
	}
	if change.FullDocument != nil {
		event["document"] = jsonSafe(change.FullDocument)
	}
	if change.UpdateDescription != nil {
		event["updated_fields"] = jsonSafe(change.UpdateDescription.UpdatedFields)
		removed := change.UpdateDescription.RemovedFields
		if removed == nil {
			removed = []string{}
		}
		event["removed_fields"] = removed
	}
	return event
}

func jsonSafe(doc bson.M) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for key, value := range doc {
		switch v := value.(type) {
		case primitive.ObjectID:
			out[key] = v.Hex()
		case primitive.DateTime:
			out[key] = v.Time().UTC().Format(time.RFC3339)
		case time.Time:
			out[key] = v.UTC().Format(time.RFC3339)
		case bson.M:
			out[key] = jsonSafe(v)
		default:
			out[key] = value
		}
	}
	return out
}

func (c *Controller) voteEvents(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	c.stream(ctx, roomID, func(streamCtx context.Context, events chan<- map[string]interface{}) error {
		return c.watchVotes(streamCtx, roomID, events)
	})
}

func (c *Controller) queueEvents(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	c.stream(ctx, roomID, func(streamCtx context.Context, events chan<- map[string]interface{}) error {
		return c.watchQueue(streamCtx, roomID, events)
	})
}

// roomEvents merges the vote and queue feeds into one stream.
func (c *Controller) roomEvents(ctx *gin.Context) {
	roomID := ctx.Param("room_id")
	c.stream(ctx, roomID, func(streamCtx context.Context, events chan<- map[string]interface{}) error {
		errs := make(chan error, 2)
		go func() { errs <- c.watchVotes(streamCtx, roomID, events) }()
		go func() { errs <- c.watchQueue(streamCtx, roomID, events) }()
		return <-errs
	})
}

type watchFunc func(ctx context.Context, events chan<- map[string]interface{}) error

// stream runs the watcher and writes its events in SSE framing until
// the client goes away. Quiet periods emit keepalives.
func (c *Controller) stream(ctx *gin.Context, roomID string, watch watchFunc) {
	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")
	ctx.Writer.Header().Set("X-Accel-Buffering", "no")

	streamCtx, cancel := context.WithCancel(ctx.Request.Context())
	defer cancel()

	events := make(chan map[string]interface{}, 16)
	errs := make(chan error, 1)
	go func() { errs <- watch(streamCtx, events) }()

	c.write(ctx, map[string]interface{}{"type": "connected", "room_id": roomID})

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-streamCtx.Done():
			return
		case err := <-errs:
			if err != nil && streamCtx.Err() == nil {
				c.logger.Error("change stream failed",
					slog.String("room_id", roomID), slog.Any("error", err))
				c.write(ctx, map[string]interface{}{"type": "error", "message": err.Error()})
			}
			return
		case event := <-events:
			c.write(ctx, event)
		case <-keepalive.C:
			c.write(ctx, map[string]interface{}{"type": "keepalive"})
		}
	}
}

func (c *Controller) write(ctx *gin.Context, event map[string]interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	ctx.Writer.Write([]byte("data: "))
	ctx.Writer.Write(payload)
	ctx.Writer.Write([]byte("\n\n"))
	ctx.Writer.Flush()
}

// watchVotes follows vote mutations for the room's items. Vote rows
// carry no room id, so membership is resolved through item ids first.
func (c *Controller) watchVotes(ctx context.Context, roomID string, events chan<- map[string]interface{}) error {
	roomOID, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil
	}

	items := c.db.Collection(infra_mongo_init.CollectionQueueItems)
	itemIDs, err := items.Distinct(ctx, "_id", bson.M{"room_id": roomOID})
	if err != nil {
		return err
	}
	if len(itemIDs) == 0 {
		select {
		case events <- map[string]interface{}{"type": "info", "message": "no items in room"}:
		case <-ctx.Done():
		}
		return nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"fullDocument.item_id": bson.M{"$in": itemIDs}}}},
	}
	stream, err := c.db.Collection(infra_mongo_init.CollectionVotes).Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return err
	}
	defer stream.Close(ctx)

	for stream.Next(ctx) {
		var change changeDoc
		if err := stream.Decode(&change); err != nil {
			return err
		}

		event := serialize(change)
		event["type"] = "vote_change"
		c.attachVoteCounts(ctx, change, event)

		select {
		case events <- event:
		case <-ctx.Done():
			return nil
		}
	}
	return stream.Err()
}

// attachVoteCounts snapshots the item's denormalized counters so SSE
// consumers do not need a follow-up request.
func (c *Controller) attachVoteCounts(ctx context.Context, change changeDoc, event map[string]interface{}) {
	itemID, ok := change.FullDocument["item_id"].(primitive.ObjectID)
	if !ok {
		return
	}

	var counts struct {
		Upvotes   int `bson:"upvotes"`
		Downvotes int `bson:"downvotes"`
		VoteScore int `bson:"vote_score"`
	}
	err := c.db.Collection(infra_mongo_init.CollectionQueueItems).FindOne(ctx,
		bson.M{"_id": itemID},
		options.FindOne().SetProjection(bson.M{"upvotes": 1, "downvotes": 1, "vote_score": 1}),
	).Decode(&counts)
	if err != nil {
		return
	}
	event["vote_counts"] = map[string]interface{}{
		"upvotes":    counts.Upvotes,
		"downvotes":  counts.Downvotes,
		"vote_score": counts.VoteScore,
	}
}

func (c *Controller) watchQueue(ctx context.Context, roomID string, events chan<- map[string]interface{}) error {
	roomOID, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"fullDocument.room_id": roomOID}}},
	}
	stream, err := c.db.Collection(infra_mongo_init.CollectionQueueItems).Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return err
	}
	defer stream.Close(ctx)

	for stream.Next(ctx) {
		var change changeDoc
		if err := stream.Decode(&change); err != nil {
			return err
		}

		event := serialize(change)
		event["type"] = "queue_change"

		select {
		case events <- event:
		case <-ctx.Done():
			return nil
		}
	}
	return stream.Err()
}
