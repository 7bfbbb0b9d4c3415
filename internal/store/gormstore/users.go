package gormstore

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/farellandr/gatherly/internal/models"
	"github.com/farellandr/gatherly/internal/store"
)

type userRepository struct {
	db *gorm.DB
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	normalizeUser(user)
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

func (r *userRepository) first(ctx context.Context, tx *gorm.DB, query string, arg string) (*models.User, error) {
	if tx == nil {
		tx = r.db
	}
	var user models.User
	if err := tx.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// lockFirst is first with a row lock held until tx ends.
func (r *userRepository) lockFirst(ctx context.Context, tx *gorm.DB, query string, arg string) (*models.User, error) {
	user, err := r.first(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), query, arg)
	if err != nil {
		return nil, err
	}
	normalizeUser(user)
	return user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.first(ctx, nil, "id = ?", id)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, nil, "username = ?", username)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, nil, "email = ?", email)
}

func (r *userRepository) UpdateProfile(ctx context.Context, userID string, update store.ProfileUpdate) error {
	changes := map[string]interface{}{}
	for column, value := range map[string]*string{
		"name":          update.Name,
		"bio":           update.Bio,
		"phone":         update.Phone,
		"organization":  update.Organization,
		"website":       update.Website,
		"profile_image": update.ProfileImage,
	} {
		if value != nil {
			changes[column] = *value
		}
	}
	if len(changes) == 0 {
		_, err := r.GetByID(ctx, userID)
		return err
	}
	return r.updateColumns(ctx, userID, changes)
}

func (r *userRepository) SetStripeAccount(ctx context.Context, userID, accountID string) error {
	return r.updateColumns(ctx, userID, map[string]interface{}{"stripe_account_id": accountID})
}

func (r *userRepository) updateColumns(ctx context.Context, userID string, changes map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(changes)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, username string) error {
	result := r.db.WithContext(ctx).Where("username = ?", username).Delete(&models.User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *userRepository) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	tx := r.db.WithContext(ctx).Model(&models.User{})
	if query != "" {
		prefix := strings.ToLower(query) + "%"
		tx = tx.Where("LOWER(username) LIKE ? OR LOWER(name) LIKE ?", prefix, prefix)
	}

	users := []models.User{}
	if err := tx.Order("username ASC").Limit(limit).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Follow(ctx context.Context, follower, followee string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from, to, err := r.pair(ctx, tx, follower, followee)
		if err != nil {
			return err
		}

		from.Following = addUnique(from.Following, followee)
		to.Followers = addUnique(to.Followers, follower)
		return saveSocial(tx, from, to)
	})
}

func (r *userRepository) Unfollow(ctx context.Context, follower, followee string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from, to, err := r.pair(ctx, tx, follower, followee)
		if err != nil {
			return err
		}

		from.Following = remove(from.Following, followee)
		to.Followers = remove(to.Followers, follower)
		return saveSocial(tx, from, to)
	})
}

// pair locks both users in username order so crossing follows cannot deadlock.
func (r *userRepository) pair(ctx context.Context, tx *gorm.DB, a, b string) (*models.User, *models.User, error) {
	var users []models.User
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("username IN ?", []string{a, b}).
		Order("username ASC").
		Find(&users).Error
	if err != nil {
		return nil, nil, err
	}

	var from, to *models.User
	for i := range users {
		normalizeUser(&users[i])
		switch users[i].Username {
		case a:
			from = &users[i]
		case b:
			to = &users[i]
		}
	}
	if from == nil || to == nil {
		return nil, nil, store.ErrNotFound
	}
	return from, to, nil
}

func saveSocial(tx *gorm.DB, from, to *models.User) error {
	if err := tx.Model(from).Select("following").Updates(from).Error; err != nil {
		return err
	}
	return tx.Model(to).Select("followers").Updates(to).Error
}

func (r *userRepository) AppendTicket(ctx context.Context, userID string, ticket models.PurchasedTicket) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := r.lockFirst(ctx, tx, "id = ?", userID)
		if err != nil {
			return err
		}
		if user.HasCheckoutSession(ticket.CheckoutSessionID) {
			return nil
		}

		user.Tickets = append(user.Tickets, ticket)
		if err := tx.Model(user).Select("tickets").Updates(user).Error; err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

func (r *userRepository) MarkTicketUsed(ctx context.Context, username, ticketID string, at time.Time) (*models.PurchasedTicket, error) {
	var marked models.PurchasedTicket
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := r.lockFirst(ctx, tx, "username = ?", username)
		if err != nil {
			return err
		}
		ticket := user.Ticket(ticketID)
		if ticket == nil {
			return store.ErrNotFound
		}
		if ticket.Used {
			return store.ErrTicketUsed
		}

		usedAt := at.UTC()
		ticket.Used = true
		ticket.UsedAt = &usedAt
		marked = *ticket
		return tx.Model(user).Select("tickets").Updates(user).Error
	})
	if err != nil {
		return nil, err
	}
	return &marked, nil
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

func addUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func remove(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}
