package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"remanflow/config"
)

// KafkaBackend publishes through one shared writer and runs a reader
// goroutine per subscribed topic. Durable topics are consumed in the
// configured group; reply and inbox topics are created up front and read
// from partition 0 without a group so no other member can be assigned them.
type KafkaBackend struct {
	cfg    config.KafkaConfig
	writer *kafka.Writer

	mu        sync.Mutex
	connected bool
	readers   map[string]*kafkaSub
}

type kafkaSub struct {
	reader *kafka.Reader
	cancel context.CancelFunc
	done   chan struct{}
}

func NewKafkaBackend(cfg config.KafkaConfig) *KafkaBackend {
	return &KafkaBackend{cfg: cfg, readers: make(map[string]*kafkaSub)}
}

func (k *KafkaBackend) Connect() error {
	if len(k.cfg.Brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := kafka.DialContext(ctx, "tcp", k.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka dial %s: %w", k.cfg.Brokers[0], err)
	}
	conn.Close()

	k.writer = &kafka.Writer{
		Addr:                   kafka.TCP(k.cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	k.mu.Lock()
	k.connected = true
	k.mu.Unlock()
	log.Printf("kafka: connected to %v", k.cfg.Brokers)
	return nil
}

func (k *KafkaBackend) IsConnected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.connected
}

func (k *KafkaBackend) Publish(topic string, payload []byte) error {
	if k.writer == nil {
		return errNotConnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Value: payload})
}

func (k *KafkaBackend) readerConfig(topic string, ephemeral bool) kafka.ReaderConfig {
	rc := kafka.ReaderConfig{
		Brokers:  k.cfg.Brokers,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  250 * time.Millisecond,
	}
	if ephemeral {
		rc.Partition = 0
	} else {
		rc.GroupID = k.cfg.GroupID
	}
	return rc
}

func (k *KafkaBackend) Subscribe(topic string, h Handler) error {
	if !k.IsConnected() {
		return errNotConnected
	}
	rc := k.readerConfig(topic, false)
	k.consume(topic, kafka.NewReader(rc), h, rc.GroupID != "")
	return nil
}

// SubscribeEphemeral creates topic with a single partition and reads it from
// the first offset, so a reply published right after subscribing is not lost.
func (k *KafkaBackend) SubscribeEphemeral(topic string, h Handler) error {
	if !k.IsConnected() {
		return errNotConnected
	}
	if err := k.createTopic(topic); err != nil {
		return fmt.Errorf("kafka create %s: %w", topic, err)
	}
	reader := kafka.NewReader(k.readerConfig(topic, true))
	if err := reader.SetOffset(kafka.FirstOffset); err != nil {
		reader.Close()
		return err
	}
	k.consume(topic, reader, h, false)
	return nil
}

func (k *KafkaBackend) consume(topic string, reader *kafka.Reader, h Handler, commit bool) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &kafkaSub{reader: reader, cancel: cancel, done: make(chan struct{})}

	k.mu.Lock()
	old := k.readers[topic]
	k.readers[topic] = sub
	k.mu.Unlock()
	if old != nil {
		old.close()
	}

	go func() {
		defer close(sub.done)
		for {
			msg, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("kafka: fetch %s: %v", topic, err)
				time.Sleep(time.Second)
				continue
			}
			h(msg.Topic, msg.Value)
			if !commit {
				continue
			}
			if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				log.Printf("kafka: commit %s: %v", topic, err)
			}
		}
	}()
}

func (s *kafkaSub) close() {
	s.cancel()
	<-s.done
	s.reader.Close()
}

func (k *KafkaBackend) Unsubscribe(topic string) error {
	k.mu.Lock()
	sub := k.readers[topic]
	delete(k.readers, topic)
	k.mu.Unlock()
	if sub != nil {
		sub.close()
	}
	return nil
}

// controller dials the cluster controller, which serves topic admin calls.
func (k *KafkaBackend) controller() (*kafka.Conn, error) {
	conn, err := kafka.Dial("tcp", k.cfg.Brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	controller, err := conn.Controller()
	if err != nil {
		return nil, err
	}
	return kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
}

func (k *KafkaBackend) createTopic(topic string) error {
	cc, err := k.controller()
	if err != nil {
		return err
	}
	defer cc.Close()
	err = cc.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	if errors.Is(err, kafka.TopicAlreadyExists) {
		return nil
	}
	return err
}

// Purge deletes a temporary topic from the cluster.
func (k *KafkaBackend) Purge(topic string) error {
	cc, err := k.controller()
	if err != nil {
		return err
	}
	defer cc.Close()
	return cc.DeleteTopics(topic)
}

func (k *KafkaBackend) Close() {
	k.mu.Lock()
	subs := k.readers
	k.readers = make(map[string]*kafkaSub)
	k.connected = false
	k.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
	if k.writer != nil {
		k.writer.Close()
	}
}
