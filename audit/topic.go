package audit

import (
	"context"

	"encore.dev/pubsub"
	"encore.dev/rlog"
)

// AddressMutationTopic is published to once per completed coordinator
// mutation. Named and shaped after cache-manager/subscriptions.go's
// CacheRefreshTopic: an Encore pubsub.Topic with at-least-once delivery,
// since losing an audit event is worse than double-logging one (Insert's
// ON CONFLICT DO NOTHING on request_id+sub_id+op makes redelivery benign).
var AddressMutationTopic = pubsub.NewTopic[*MutationEvent](
	"address-mutation",
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

// Publish fans out a mutation event. Failures to publish are logged but
// never propagated to the caller: the audit trail is a secondary concern,
// not part of the write/delete protocol spec.md §4.4 defines.
func Publish(ctx context.Context, event *MutationEvent) {
	if _, err := AddressMutationTopic.Publish(ctx, event); err != nil {
		rlog.Error("failed to publish mutation event", "address", event.Address, "op", event.Op, "err", err)
	}
}

// persistSubscription writes every published mutation event into the
// durable audit log, the same shape as cache-manager's
// cache-manager-invalidate subscription wired against invalidation's
// topic.
var _ = pubsub.NewSubscription(
	AddressMutationTopic,
	"address-mutation-persist",
	pubsub.SubscriptionConfig[*MutationEvent]{
		Handler: handlePersist,
	},
)

func handlePersist(ctx context.Context, event *MutationEvent) error {
	logger, err := initLogger()
	if err != nil {
		return err
	}
	return logger.Insert(ctx, *event)
}
