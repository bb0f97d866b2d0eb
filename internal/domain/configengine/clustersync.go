package configengine

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/batata-io/batata/internal/transport"
)

const clusterSyncTopic = "batata.config.cluster_sync"

// clusterSync fans ConfigChangeClusterSync out to every peer node over a
// durable topic exchange, generalizing the teacher's
// pubsub.eventDispatcher (publish side) plus a subscriber loop the
// teacher itself has no counterpart for.
type clusterSync struct {
	publisher message.Publisher
	subscriber message.Subscriber
	nodeID string
	logger *slog.Logger

	onRemoteChange func(key transport.ConfigKey, revision uint64)
}

// NewClusterSync dials the AMQP broker at amqpURI and wires a durable
// topic publisher/subscriber pair for cluster-sync messages.
func NewClusterSync(amqpURI, nodeID string, logger *slog.Logger) (*clusterSync, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	pubConfig := amqp.NewDurablePubSubConfig(amqpURI, amqp.GenerateQueueNameTopicNameWithSuffix(nodeID))
	publisher, err := amqp.NewPublisher(pubConfig, wmLogger)
	if err != nil {
		return nil, err
	}
	subscriber, err := amqp.NewSubscriber(pubConfig, wmLogger)
	if err != nil {
		return nil, err
	}

	return &clusterSync{publisher: publisher, subscriber: subscriber, nodeID: nodeID, logger: logger}, nil
}

// publish fans out a local write to every peer. Publish
// failures are logged, not propagated: cluster sync invalidates caches,
// it never gates the local write that already committed to the
// ConfigStore.
func (cs *clusterSync) publish(key transport.ConfigKey, revision uint64, nodeID string) {
	body, err := json.Marshal(transport.ConfigChangeClusterSync{ConfigKey: key, Revision: revision, NodeID: nodeID})
	if err != nil {
		cs.logger.Error("marshal cluster sync message", "error", err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	if err := cs.publisher.Publish(clusterSyncTopic, msg); err != nil {
		cs.logger.Error("publish cluster sync message", "error", err)
	}
}

// Run consumes peer cluster-sync messages until ctx is cancelled,
// invoking onRemoteChange for everything not originated by this node.
func (cs *clusterSync) Run(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, clusterSyncTopic)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			cs.handle(msg)
		}
	}
}

func (cs *clusterSync) handle(msg *message.Message) {
	defer msg.Ack()
	var evt transport.ConfigChangeClusterSync
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		cs.logger.Error("decode cluster sync message", "error", err)
		return
	}
	if evt.NodeID == cs.nodeID {
		return
	}
	if cs.onRemoteChange != nil {
		cs.onRemoteChange(evt.ConfigKey, evt.Revision)
	}
}

func (cs *clusterSync) Close() error {
	if err := cs.publisher.Close(); err != nil {
		return err
	}
	return cs.subscriber.Close()
}
