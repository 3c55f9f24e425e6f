package notify

import (
	"context"
	"errors"
)

// ErrDelivery marks a notification that could not be delivered after the
// retry budget was spent. It is logged and never blocks a state commit.
var ErrDelivery = errors.New("notification delivery failed")

type Notifier interface {
	Send(ctx context.Context, text string) error
}
