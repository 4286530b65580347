package ports

import "context"

// EventPublisher notifies other instances about identity changes.
type EventPublisher interface {
	PublishSignIn(ctx context.Context, userID, accountID, network string) error
	PublishAccountLinked(ctx context.Context, userID, accountID, network string) error
	PublishAccountUnlinked(ctx context.Context, userID, accountID, network string) error
}
