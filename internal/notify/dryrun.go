package notify

import (
	"context"

	"go.uber.org/zap"
)

// DryRun logs what would have been sent and performs no network call.
// Detection and state commits upstream are unaffected.
type DryRun struct {
	Log *zap.Logger
}

func (d *DryRun) Send(ctx context.Context, text string) error {
	d.Log.Info("dry_run_alert", zap.String("text", text))
	return nil
}
