package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/siwn/ports"
)

// IdentityEvent represents a sign-in, link or unlink event
type IdentityEvent struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
	Network   string `json:"network"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher

	signInTopic string
	linkTopic   string
	unlinkTopic string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher:   publisher,
		signInTopic: "siwn.signin",
		linkTopic:   "siwn.account_linked",
		unlinkTopic: "siwn.account_unlinked",
	}
}

func (p *WatermillPublisher) publish(topic, userID, accountID, network string) error {
	event := IdentityEvent{
		UserID:    userID,
		AccountID: accountID,
		Network:   network,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// PublishSignIn publishes a sign-in event
func (p *WatermillPublisher) PublishSignIn(ctx context.Context, userID, accountID, network string) error {
	return p.publish(p.signInTopic, userID, accountID, network)
}

// PublishAccountLinked publishes an account-linked event
func (p *WatermillPublisher) PublishAccountLinked(ctx context.Context, userID, accountID, network string) error {
	return p.publish(p.linkTopic, userID, accountID, network)
}

// PublishAccountUnlinked publishes an account-unlinked event
func (p *WatermillPublisher) PublishAccountUnlinked(ctx context.Context, userID, accountID, network string) error {
	return p.publish(p.unlinkTopic, userID, accountID, network)
}
