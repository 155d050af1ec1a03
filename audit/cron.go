package audit

import (
	"context"
	"time"

	"encore.dev/cron"
)

// retentionWindow bounds how long mutation audit rows are kept. Longer
// than any plausible investigation window, short enough that the table
// doesn't grow unbounded on a long-lived node.
const retentionWindow = 30 * 24 * time.Hour

// purgeOldMutationsJob runs PurgeOldMutations daily, the same
// cron.NewJob("...", cron.JobConfig{...}) shape warming/cron.go registers
// its warmup jobs with — narrowed here to a single maintenance job instead
// of a predictive-warming schedule, since nothing in this system warms
// caches ahead of access.
var _ = cron.NewJob("purge-old-mutation-audit", cron.JobConfig{
	Title:    "Purge old mutation audit records",
	Schedule: "0 3 * * *",
	Endpoint: PurgeOldMutations,
})

// PurgeOldMutations deletes mutation audit rows older than retentionWindow.
//
//encore:api private
func PurgeOldMutations(ctx context.Context) error {
	logger, err := initLogger()
	if err != nil {
		return err
	}
	_, err = logger.Cleanup(ctx, retentionWindow)
	return err
}
