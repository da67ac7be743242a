// Package kafka публикует доменные события биллинга (order.approved, referral.credited).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/logging"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Producer struct {
	producer sarama.SyncProducer
	log      *zap.Logger
}

// NewProducer подключается к брокерам с несколькими попытками
func NewProducer(brokers []string, attempts int) (*Producer, error) {
	return newProducer(brokers, attempts, func(addrs []string, cfg *sarama.Config) (sarama.SyncProducer, error) {
		return sarama.NewSyncProducer(addrs, cfg)
	})
}

// NewProducerFrom оборачивает готовый SyncProducer (mocks.SyncProducer в тестах)
func NewProducerFrom(p sarama.SyncProducer) *Producer {
	return &Producer{producer: p, log: logging.Named("kafka")}
}

func newProducer(brokers []string, attempts int, dial func([]string, *sarama.Config) (sarama.SyncProducer, error)) (*Producer, error) {
	log := logging.Named("kafka")

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	var err error
	for i := 1; i <= attempts; i++ {
		var p sarama.SyncProducer
		p, err = dial(brokers, config)
		if err == nil {
			log.Info("📡 Kafka producer подключён", zap.Strings("brokers", brokers))
			return &Producer{producer: p, log: log}, nil
		}
		log.Warn("ожидание Kafka", zap.Int("attempt", i), zap.Int("of", attempts), zap.Error(err))
		if i < attempts {
			time.Sleep(2 * time.Second)
		}
	}
	return nil, fmt.Errorf("kafka producer: %w", err)
}

// Publish сериализует payload в JSON; key задаёт партицию (id заказа или пользователя)
func (p *Producer) Publish(ctx context.Context, topic, key string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s event: %w", topic, err)
	}

	p.log.Debug("📤 событие опубликовано",
		zap.String("topic", topic), zap.String("key", key),
		zap.Int32("partition", partition), zap.Int64("offset", offset))
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
