//go:build integration

package producer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"upandup/internal/platform/kafka/producer"
	"upandup/pkg/testutil/containers"
)

type ProducerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())

	prod, err := producer.New(producer.Config{
		Brokers:         s.kafka.Brokers,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
		ClientID:        "producer-integration",
	}, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *ProducerIntegrationSuite) consume(group, topic, key string) *kgo.Record {
	consumer, err := s.kafka.NewConsumer(group, topic)
	s.Require().NoError(err)
	defer consumer.Close()

	return s.kafka.WaitForMessage(context.Background(), consumer, 10*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == key
	})
}

// Produce only returns after the broker acknowledged the record.
func (s *ProducerIntegrationSuite) TestProduceDeliversLedgerEvent() {
	topic := "ledger-events-" + time.Now().Format("150405.000")
	err := s.producer.Produce(context.Background(), &producer.Message{
		Topic: topic,
		Key:   []byte("worker-1"),
		Value: []byte(`{"event_type":"credential_verified"}`),
		Headers: map[string]string{
			"aggregate_type": "worker",
			"aggregate_id":   "worker-1",
			"event_type":     "credential_verified",
		},
	})
	s.Require().NoError(err)

	record := s.consume("producer-it-deliver", topic, "worker-1")
	s.Require().NotNil(record, "message should be consumable")
	s.JSONEq(`{"event_type":"credential_verified"}`, string(record.Value))

	headers := make(map[string]string)
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal("worker", headers["aggregate_type"])
	s.Equal("credential_verified", headers["event_type"])
}

func (s *ProducerIntegrationSuite) TestCheckReachesBroker() {
	s.NoError(s.producer.Check(context.Background()))
}
