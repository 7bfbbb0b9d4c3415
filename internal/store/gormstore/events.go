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

// detailColumns are the columns an organizer edit may touch.
var detailColumns = []string{
	"title", "description", "category", "date", "start_time", "end_time",
	"venue", "address", "city", "ticket_types", "draft",
}

type eventRepository struct {
	db *gorm.DB
}

func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	normalizeEvent(event)
	return translate(r.db.WithContext(ctx).Create(event).Error)
}

func (r *eventRepository) Get(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, translate(err)
	}
	return &event, nil
}

func (r *eventRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Event{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *eventRepository) List(ctx context.Context, f store.EventFilter) ([]models.Event, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Event{})
	if !f.IncludeDrafts {
		query = query.Where("draft = ?", false)
	}
	if f.OrganizerID != "" {
		query = query.Where("organizer_id = ?", f.OrganizerID)
	}
	if f.City != "" {
		query = query.Where("LOWER(city) = ?", strings.ToLower(f.City))
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.Query != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(f.Query)+"%")
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	events := []models.Event{}
	err := query.Omit("purchases").
		Order("created_at DESC").
		Offset(f.Offset()).
		Limit(f.Limit).
		Find(&events).Error
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *eventRepository) UpdateDetails(ctx context.Context, id string, mutate func(*models.Event) error) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.lockFirst(tx, id, &event); err != nil {
			return err
		}
		if err := mutate(&event); err != nil {
			return err
		}
		normalizeEvent(&event)
		return tx.Model(&event).Select(detailColumns).Updates(&event).Error
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) SetDraft(ctx context.Context, id string, draft bool) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Event{}).
		Where("id = ? AND draft = ?", id, !draft).
		Update("draft", draft)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	return false, r.exists(ctx, id)
}

func (r *eventRepository) SetImage(ctx context.Context, id, image string) error {
	result := r.db.WithContext(ctx).Model(&models.Event{}).Where("id = ?", id).Update("image", image)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *eventRepository) exists(ctx context.Context, id string) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Event{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *eventRepository) lockFirst(tx *gorm.DB, id string, event *models.Event) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(event).Error
	return translate(err)
}

func (r *eventRepository) RecordPurchase(ctx context.Context, eventID string, record models.PurchaseRecord) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := r.lockFirst(tx, eventID, &event); err != nil {
			return err
		}
		if event.HasCheckoutSession(record.CheckoutSessionID) {
			return nil
		}

		if tt := event.TicketType(record.TicketType); tt != nil {
			tt.Sold += record.Quantity
		}
		event.Purchases = append(event.Purchases, record)
		normalizeEvent(&event)

		if err := tx.Model(&event).Select("ticket_types", "purchases").Updates(&event).Error; err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

func normalizeEvent(event *models.Event) {
	if event.TicketTypes == nil {
		event.TicketTypes = []models.TicketType{}
	}
	if event.Purchases == nil {
		event.Purchases = []models.PurchaseRecord{}
	}
}
