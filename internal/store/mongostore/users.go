package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/farellandr/gatherly/internal/models"
	"github.com/farellandr/gatherly/internal/store"
)

type userRepository struct {
	coll *mongo.Collection
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	normalizeUser(user)

	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		return translate(err)
	}
	return nil
}

func (r *userRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := r.coll.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *userRepository) UpdateProfile(ctx context.Context, userID string, update store.ProfileUpdate) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	for field, value := range map[string]*string{
		"name":         update.Name,
		"bio":          update.Bio,
		"phone":        update.Phone,
		"organization": update.Organization,
		"website":      update.Website,
		"profileImage": update.ProfileImage,
	} {
		if value != nil {
			set[field] = *value
		}
	}
	return r.set(ctx, userID, set)
}

func (r *userRepository) SetStripeAccount(ctx context.Context, userID, accountID string) error {
	return r.set(ctx, userID, bson.M{"stripeAccountId": accountID, "updatedAt": time.Now().UTC()})
}

func (r *userRepository) set(ctx context.Context, userID string, fields bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": fields})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, username string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"username": username})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *userRepository) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	filter := bson.M{}
	if query != "" {
		pattern := bson.M{"$regex": "^" + regexp.QuoteMeta(query), "$options": "i"}
		filter["$or"] = bson.A{bson.M{"username": pattern}, bson.M{"name": pattern}}
	}

	opts := options.Find().SetLimit(int64(limit)).SetSort(bson.D{{Key: "username", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Follow(ctx context.Context, follower, followee string) error {
	logger := log.With().Str("follower", follower).Str("followee", followee).Logger()

	if err := r.exists(ctx, follower); err != nil {
		return err
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"username": followee},
		bson.M{"$addToSet": bson.M{"followers": follower}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	res2, err := r.coll.UpdateOne(ctx,
		bson.M{"username": follower},
		bson.M{"$addToSet": bson.M{"following": followee}},
	)
	if err == nil && res2.MatchedCount == 0 {
		err = store.ErrNotFound
	}
	if err != nil {
		if res.ModifiedCount > 0 {
			if _, undoErr := r.coll.UpdateOne(ctx,
				bson.M{"username": followee},
				bson.M{"$pull": bson.M{"followers": follower}},
			); undoErr != nil {
				logger.Error().Err(undoErr).Msg("Could not revert followers after failed follow")
			}
		}
		return fmt.Errorf("update following: %w", err)
	}
	return nil
}

func (r *userRepository) Unfollow(ctx context.Context, follower, followee string) error {
	logger := log.With().Str("follower", follower).Str("followee", followee).Logger()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"username": followee},
		bson.M{"$pull": bson.M{"followers": follower}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	res2, err := r.coll.UpdateOne(ctx,
		bson.M{"username": follower},
		bson.M{"$pull": bson.M{"following": followee}},
	)
	if err == nil && res2.MatchedCount == 0 {
		err = store.ErrNotFound
	}
	if err != nil {
		if res.ModifiedCount > 0 {
			if _, undoErr := r.coll.UpdateOne(ctx,
				bson.M{"username": followee},
				bson.M{"$addToSet": bson.M{"followers": follower}},
			); undoErr != nil {
				logger.Error().Err(undoErr).Msg("Could not restore followers after failed unfollow")
			}
		}
		return fmt.Errorf("update following: %w", err)
	}
	return nil
}

func (r *userRepository) AppendTicket(ctx context.Context, userID string, ticket models.PurchasedTicket) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID, "tickets.checkoutSessionId": bson.M{"$ne": ticket.CheckoutSessionID}},
		bson.M{
			"$push": bson.M{"tickets": ticket},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": userID})
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, store.ErrNotFound
	}
	return false, nil
}

func (r *userRepository) MarkTicketUsed(ctx context.Context, username, ticketID string, at time.Time) (*models.PurchasedTicket, error) {
	usedAt := at.UTC()
	filter := bson.M{
		"username": username,
		"tickets":  bson.M{"$elemMatch": bson.M{"id": ticketID, "used": false}},
	}
	update := bson.M{"$set": bson.M{
		"tickets.$.used":   true,
		"tickets.$.usedAt": usedAt,
		"updatedAt":        usedAt,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user models.User
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&user)
	if err == nil {
		if ticket := user.Ticket(ticketID); ticket != nil {
			return ticket, nil
		}
		return nil, store.ErrNotFound
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	holder, err := r.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if ticket := holder.Ticket(ticketID); ticket != nil && ticket.Used {
		return nil, store.ErrTicketUsed
	}
	return nil, store.ErrNotFound
}

func (r *userRepository) exists(ctx context.Context, username string) error {
	n, err := r.coll.CountDocuments(ctx, bson.M{"username": username})
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func normalizeUser(user *models.User) {
	if user.Followers == nil {
		user.Followers = []string{}
	}
	if user.Following == nil {
		user.Following = []string{}
	}
	if user.Tickets == nil {
		user.Tickets = []models.PurchasedTicket{}
	}
}
