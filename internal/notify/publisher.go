package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	SubjectTicketsPurchased = "gatherly.tickets.purchased"
	SubjectEventsPublished  = "gatherly.events.published"
	SubjectUsersFollowed    = "gatherly.users.followed"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
	Close()
}

type NatsPublisher struct {
	nc *nats.Conn
}

func NewNatsPublisher(url string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("gatherly-api"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	log.Info().Str("url", url).Msg("Connected to NATS")
	return &NatsPublisher{nc: nc}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, subject string, payload any) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(subject, blob); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *NatsPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close()                                     {}
