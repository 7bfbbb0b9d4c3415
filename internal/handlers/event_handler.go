package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/farellandr/gatherly/internal/helpers"
	"github.com/farellandr/gatherly/internal/middleware"
	"github.com/farellandr/gatherly/internal/models"
	"github.com/farellandr/gatherly/internal/notify"
	"github.com/farellandr/gatherly/internal/store"
)

var eventIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type EventFields struct {
	Title       string              `json:"title" binding:"required"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	Date        string              `json:"date" binding:"required"`
	StartTime   string              `json:"startTime"`
	EndTime     string              `json:"endTime"`
	Venue       string              `json:"venue" binding:"required"`
	Address     string              `json:"address"`
	City        string              `json:"city"`
	TicketTypes []models.TicketType `json:"ticketTypes" binding:"dive"`
	Draft       *bool               `json:"draft"`
}

type CreateEventRequest struct {
	ID string `json:"id" binding:"required"`
	EventFields
}

func validateEventFields(f *EventFields) error {
	if _, err := time.Parse("2006-01-02", f.Date); err != nil {
		return errors.New("invalid date format, expected YYYY-MM-DD")
	}

	var start, end time.Time
	var err error
	if f.StartTime != "" {
		if start, err = time.Parse("15:04", f.StartTime); err != nil {
			return errors.New("invalid start time format, expected HH:MM")
		}
	}
	if f.EndTime != "" {
		if end, err = time.Parse("15:04", f.EndTime); err != nil {
			return errors.New("invalid end time format, expected HH:MM")
		}
	}
	if f.StartTime != "" && f.EndTime != "" && !end.After(start) {
		return errors.New("end time must be after start time")
	}

	seen := make(map[string]bool, len(f.TicketTypes))
	for i := range f.TicketTypes {
		name := strings.TrimSpace(f.TicketTypes[i].Name)
		if name == "" {
			return errors.New("ticket type name is required")
		}
		if seen[name] {
			return fmt.Errorf("duplicate ticket type %q", name)
		}
		seen[name] = true
		f.TicketTypes[i].Name = name
	}
	return nil
}

func CreateEvent(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Missing required fields.")
		return
	}
	if !eventIDPattern.MatchString(req.ID) {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event ID.")
		return
	}
	if err := validateEventFields(&req.EventFields); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	s, ok := storeFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	organizer := c.GetString(middleware.UsernameKey)

	event := models.Event{
		ID:          req.ID,
		OrganizerID: organizer,
		Draft:       true,
	}
	applyEventFields(&event, &req.EventFields)
	for i := range event.TicketTypes {
		event.TicketTypes[i].Sold = 0
	}

	if err := s.Events().Create(ctx, &event); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			helpers.RespondWithStoreError(c, err, "Event not found.")
			return
		}
		existing, getErr := s.Events().Get(ctx, req.ID)
		if getErr == nil && existing.OrganizerID != organizer {
			helpers.RespondWithError(c, http.StatusForbidden, "Event ID belongs to another organizer.")
			return
		}
		helpers.RespondWithError(c, http.StatusConflict, "Event already exists.")
		return
	}

	log.Info().Str("event_id", event.ID).Str("organizer", organizer).Msg("Event created")
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Event created successfully.",
		"event_id": event.ID,
		"event":    event,
	})
}

func applyEventFields(event *models.Event, f *EventFields) {
	event.Title = f.Title
	event.Description = f.Description
	event.Category = f.Category
	event.Date = f.Date
	event.StartTime = f.StartTime
	event.EndTime = f.EndTime
	event.Venue = f.Venue
	event.Address = f.Address
	event.City = f.City
	if f.TicketTypes != nil {
		event.TicketTypes = f.TicketTypes
	}
	if f.Draft != nil {
		event.Draft = *f.Draft
	}
}

func GetEvent(c *gin.Context) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}

	event, err := s.Events().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		helpers.RespondWithStoreError(c, err, "Event not found.")
		return
	}

	isOwner := event.OrganizerID == c.GetString(middleware.UsernameKey)
	if event.Draft && !isOwner {
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
		return
	}
	if !isOwner {
		c.JSON(http.StatusOK, event.Public())
		return
	}
	c.JSON(http.StatusOK, event)
}

func ListEvents(c *gin.Context) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}

	page, limit, err := helpers.ParsePagination(c)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	filter := store.EventFilter{
		City:     c.Query("city"),
		Category: c.Query("category"),
		Query:    strings.TrimSpace(c.Query("q")),
		Page:     page,
		Limit:    limit,
	}
	events, total, err := s.Events().List(c.Request.Context(), filter)
	if err != nil {
		helpers.RespondWithStoreError(c, err, "Event not found.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":      events,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": helpers.TotalPages(total, limit),
	})
}

// ownedEvent loads the event named in the path and checks the caller owns it.
func ownedEvent(c *gin.Context, s store.Store) (*models.Event, bool) {
	event, err := s.Events().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		helpers.RespondWithStoreError(c, err, "Event not found.")
		return nil, false
	}
	if event.OrganizerID != c.GetString(middleware.UsernameKey) {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to modify this event.")
		return nil, false
	}
	return event, true
}

func UpdateEvent(c *gin.Context) {
	var req EventFields
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Missing required fields.")
		return
	}
	if err := validateEventFields(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	s, ok := storeFrom(c)
	if !ok {
		return
	}
	if _, ok := ownedEvent(c, s); !ok {
		return
	}

	event, err := s.Events().UpdateDetails(c.Request.Context(), c.Param("id"), func(event *models.Event) error {
		if req.TicketTypes != nil {
			merged, err := mergeTicketTypes(event.TicketTypes, req.TicketTypes)
			if err != nil {
				return err
			}
			req.TicketTypes = merged
		}
		applyEventFields(event, &req)
		return nil
	})
	if err != nil {
		var soldErr *ticketSalesError
		if errors.As(err, &soldErr) {
			helpers.RespondWithError(c, http.StatusBadRequest, soldErr.Error())
			return
		}
		helpers.RespondWithStoreError(c, err, "Event not found.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event updated successfully.",
		"event":   event,
	})
}

// ticketSalesError rejects edits that would strand tickets already sold.
type ticketSalesError struct {
	msg string
}

func (e *ticketSalesError) Error() string { return e.msg }

// mergeTicketTypes keeps sold counters for ticket types that survive the update
// and refuses changes that would strand tickets already sold.
func mergeTicketTypes(current, next []models.TicketType) ([]models.TicketType, error) {
	sold := make(map[string]int, len(current))
	for _, t := range current {
		sold[t.Name] = t.Sold
	}

	for i := range next {
		n := sold[next[i].Name]
		if next[i].Quantity < n {
			return nil, &ticketSalesError{fmt.Sprintf("ticket type %q already sold %d tickets", next[i].Name, n)}
		}
		next[i].Sold = n
		delete(sold, next[i].Name)
	}
	for name, n := range sold {
		if n > 0 {
			return nil, &ticketSalesError{fmt.Sprintf("ticket type %q has sales and cannot be removed", name)}
		}
	}
	return next, nil
}

func PublishEvent(c *gin.Context) {
	setDraft(c, false)
}

func UnpublishEvent(c *gin.Context) {
	setDraft(c, true)
}

func setDraft(c *gin.Context, draft bool) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}
	event, ok := ownedEvent(c, s)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	changed, err := s.Events().SetDraft(ctx, event.ID, draft)
	if err != nil {
		helpers.RespondWithStoreError(c, err, "Event not found.")
		return
	}
	if event, err = s.Events().Get(ctx, event.ID); err != nil {
		helpers.RespondWithStoreError(c, err, "Event not found.")
		return
	}

	if changed && !draft {
		payload := gin.H{"eventId": event.ID, "organizerId": event.OrganizerID, "title": event.Title}
		if err := middleware.GetPublisher(c).Publish(ctx, notify.SubjectEventsPublished, payload); err != nil {
			log.Warn().Err(err).Str("event_id", event.ID).Msg("Could not publish event announcement")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event updated successfully.",
		"event":   event,
	})
}

func UploadEventImage(c *gin.Context) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}
	cfg, ok := configFrom(c)
	if !ok {
		return
	}
	event, ok := ownedEvent(c, s)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Image file is required.")
		return
	}

	uploadCfg := helpers.ImageUploadConfig(cfg.Upload.Dir, cfg.Upload.PublicPath)
	imagePath, err := helpers.UploadFile(c, fileHeader, "events", uploadCfg)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	old := event.Image
	if err := s.Events().SetImage(c.Request.Context(), event.ID, imagePath); err != nil {
		_ = helpers.DeleteFile(uploadCfg, imagePath)
		helpers.RespondWithStoreError(c, err, "Event not found.")
		return
	}
	if err := helpers.DeleteFile(uploadCfg, old); err != nil {
		log.Warn().Err(err).Str("path", old).Msg("Error deleting old event image")
	}

	c.JSON(http.StatusOK, gin.H{"image": imagePath})
}

func DeleteEvent(c *gin.Context) {
	s, ok := storeFrom(c)
	if !ok {
		return
	}
	cfg, ok := configFrom(c)
	if !ok {
		return
	}
	event, ok := ownedEvent(c, s)
	if !ok {
		return
	}

	if len(event.Purchases) > 0 {
		helpers.RespondWithError(c, http.StatusConflict, "Event has sold tickets and cannot be deleted.")
		return
	}

	if err := s.Events().Delete(c.Request.Context(), event.ID); err != nil {
		helpers.RespondWithStoreError(c, err, "Event not found.")
		return
	}

	uploadCfg := helpers.ImageUploadConfig(cfg.Upload.Dir, cfg.Upload.PublicPath)
	if err := helpers.DeleteFile(uploadCfg, event.Image); err != nil {
		log.Warn().Err(err).Str("path", event.Image).Msg("Error deleting event image")
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event deleted successfully.",
	})
}
