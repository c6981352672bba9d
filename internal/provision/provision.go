// Package provision creates the broker topics the relay publishes to.
package provision

import (
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/drblury/railflow/internal/events"
	errspkg "github.com/drblury/railflow/internal/runtime/errors"
	"github.com/drblury/railflow/internal/runtime/logging"
)

// Topics lists every topic the relay writes to.
var Topics = []string{events.TopicActivation, events.TopicCancellation}

// ClusterAdmin is the subset of sarama.ClusterAdmin used for provisioning.
type ClusterAdmin interface {
	CreateTopic(topic string, detail *sarama.TopicDetail, validateOnly bool) error
	Close() error
}

// Settings describes the layout of every provisioned topic.
type Settings struct {
	Partitions        int32
	ReplicationFactor int16
}

// NewClusterAdmin connects to the Kafka cluster.
func NewClusterAdmin(brokers []string, clientID string) (sarama.ClusterAdmin, error) {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	admin, err := sarama.NewClusterAdmin(brokers, cfg)
	if err != nil {
		return nil, &errspkg.ConnectionError{Endpoint: fmt.Sprint(brokers), Err: err}
	}
	return admin, nil
}

// CreateTopics creates every topic in Topics. Topics that already exist are
// left untouched and are not an error.
func CreateTopics(admin ClusterAdmin, settings Settings, logger logging.ServiceLogger) error {
	if settings.Partitions <= 0 {
		return fmt.Errorf("partitions must be positive, got %d", settings.Partitions)
	}
	if settings.ReplicationFactor <= 0 {
		return fmt.Errorf("replication factor must be positive, got %d", settings.ReplicationFactor)
	}

	var errs []error
	for _, topic := range Topics {
		fields := logging.LogFields{
			"topic":              topic,
			"partitions":         settings.Partitions,
			"replication_factor": settings.ReplicationFactor,
		}
		err := admin.CreateTopic(topic, &sarama.TopicDetail{
			NumPartitions:     settings.Partitions,
			ReplicationFactor: settings.ReplicationFactor,
		}, false)
		switch {
		case err == nil:
			logger.Info("Topic created", fields)
		case topicExists(err):
			logger.Info("Topic already exists", fields)
		default:
			logger.Error("Topic creation failed", err, fields)
			errs = append(errs, fmt.Errorf("create topic %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

func topicExists(err error) bool {
	var topicErr *sarama.TopicError
	if errors.As(err, &topicErr) {
		return topicErr.Err == sarama.ErrTopicAlreadyExists
	}
	return errors.Is(err, sarama.ErrTopicAlreadyExists)
}
