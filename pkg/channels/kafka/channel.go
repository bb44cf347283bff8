// Package kafka wires watermill Kafka publishers and subscribers for the event bus.
package kafka

import (
	"errors"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
)

// CreateChannel builds the Kafka publisher and subscriber pair for one
// service. Brokers come from KAFKA_BROKERS (comma-separated); the service
// name scopes both the sarama client ids and the consumer group, so each
// playbook-engine service keeps its own offset cursor on the shared
// execution-events topic.
func CreateChannel(logger watermill.LoggerAdapter, serviceName string) (*kafka.Publisher, *kafka.Subscriber, error) {
	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	if len(brokers) == 0 {
		return nil, nil, errors.New("KAFKA_BROKERS environment variable is not set or empty")
	}

	clientID := "playbook-engine-" + serviceName

	saramaSubscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaSubscriberConfig.ClientID = clientID
	saramaSubscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaSubscriberConfig,
			ConsumerGroup:         clientID,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	saramaPublisherConfig := sarama.NewConfig()
	saramaPublisherConfig.ClientID = clientID
	saramaPublisherConfig.Producer.Return.Successes = true

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaPublisherConfig,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	return publisher, subscriber, nil
}

// parseBrokers splits a comma-separated broker list, dropping empty entries
// so a trailing comma does not produce a phantom broker.
func parseBrokers(raw string) []string {
	brokers := make([]string, 0)

	for _, broker := range strings.Split(raw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}

	return brokers
}
