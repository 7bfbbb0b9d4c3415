package mongostore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/farellandr/gatherly/internal/models"
	"github.com/farellandr/gatherly/internal/store"
)

// maxDetailAttempts bounds the retries of an edit racing ticket sales.
const maxDetailAttempts = 5

var errEventContended = errors.New("event kept changing during update")

type eventRepository struct {
	coll *mongo.Collection
}

func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.TicketTypes == nil {
		event.TicketTypes = []models.TicketType{}
	}
	if event.Purchases == nil {
		event.Purchases = []models.PurchaseRecord{}
	}

	if _, err := r.coll.InsertOne(ctx, event); err != nil {
		return translate(err)
	}
	return nil
}

func (r *eventRepository) Get(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&event); err != nil {
		return nil, translate(err)
	}
	return &event, nil
}

func (r *eventRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *eventRepository) List(ctx context.Context, f store.EventFilter) ([]models.Event, int64, error) {
	filter := bson.M{}
	if !f.IncludeDrafts {
		filter["draft"] = false
	}
	if f.OrganizerID != "" {
		filter["organizerId"] = f.OrganizerID
	}
	if f.City != "" {
		filter["city"] = bson.M{"$regex": "^" + regexp.QuoteMeta(f.City) + "$", "$options": "i"}
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Query != "" {
		filter["title"] = bson.M{"$regex": regexp.QuoteMeta(f.Query), "$options": "i"}
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(f.Offset())).
		SetLimit(int64(f.Limit)).
		SetProjection(bson.M{"purchases": 0})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	events := []models.Event{}
	if err := cur.All(ctx, &events); err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// UpdateDetails retries when a purchase lands between the read and the write,
// since sold counters live inside the ticket types it rewrites.
func (r *eventRepository) UpdateDetails(ctx context.Context, id string, mutate func(*models.Event) error) (*models.Event, error) {
	for attempt := 0; attempt < maxDetailAttempts; attempt++ {
		event, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		seen := len(event.Purchases)

		if err := mutate(event); err != nil {
			return nil, err
		}
		if event.TicketTypes == nil {
			event.TicketTypes = []models.TicketType{}
		}
		event.UpdatedAt = time.Now().UTC()

		res, err := r.coll.UpdateOne(ctx,
			bson.M{"_id": id, "purchases": bson.M{"$size": seen}},
			bson.M{"$set": bson.M{
				"title":       event.Title,
				"description": event.Description,
				"category":    event.Category,
				"date":        event.Date,
				"startTime":   event.StartTime,
				"endTime":     event.EndTime,
				"venue":       event.Venue,
				"address":     event.Address,
				"city":        event.City,
				"ticketTypes": event.TicketTypes,
				"draft":       event.Draft,
				"updatedAt":   event.UpdatedAt,
			}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount > 0 {
			return event, nil
		}
	}
	return nil, errEventContended
}

func (r *eventRepository) SetDraft(ctx context.Context, id string, draft bool) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "draft": !draft},
		bson.M{"$set": bson.M{"draft": draft, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	return false, r.exists(ctx, id)
}

func (r *eventRepository) SetImage(ctx context.Context, id, image string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"image": image, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *eventRepository) exists(ctx context.Context, id string) error {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *eventRepository) RecordPurchase(ctx context.Context, eventID string, record models.PurchaseRecord) (bool, error) {
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"tt.name": record.TicketType}},
	})
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": eventID, "purchases.checkoutSessionId": bson.M{"$ne": record.CheckoutSessionID}},
		bson.M{
			"$push": bson.M{"purchases": record},
			"$inc":  bson.M{"ticketTypes.$[tt].sold": record.Quantity},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
		opts,
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	return false, r.exists(ctx, eventID)
}
