package messaging

import (
	"log"
	"sync"
	"time"

	"remanflow/store"
)

const outboxBatchSize = 50

// OutboxStore is the persistence side of the outbox.
type OutboxStore interface {
	ListPendingOutbox(limit int) ([]*store.OutboxMessage, error)
	AckOutbox(id int64) error
	FailOutbox(id int64, reason string) error
}

// OutboxDrainer periodically publishes queued outbox rows.
type OutboxDrainer struct {
	db       OutboxStore
	client   *Client
	interval time.Duration

	// OnPublished, if set, is called for each row after a successful publish.
	OnPublished func(msg *store.OutboxMessage)

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped chan struct{}
}

func NewOutboxDrainer(db OutboxStore, client *Client, interval time.Duration) *OutboxDrainer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &OutboxDrainer{db: db, client: client, interval: interval}
}

func (d *OutboxDrainer) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopCh != nil {
		return
	}
	d.stopCh = make(chan struct{})
	d.stopped = make(chan struct{})
	go d.run(d.stopCh, d.stopped)
}

func (d *OutboxDrainer) Stop() {
	d.mu.Lock()
	stopCh, stopped := d.stopCh, d.stopped
	d.stopCh, d.stopped = nil, nil
	d.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-stopped
}

func (d *OutboxDrainer) run(stopCh, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.DrainOnce()
		case <-stopCh:
			return
		}
	}
}

// DrainOnce publishes one batch and returns how many rows were sent.
func (d *OutboxDrainer) DrainOnce() int {
	if !d.client.IsConnected() {
		return 0
	}
	msgs, err := d.db.ListPendingOutbox(outboxBatchSize)
	if err != nil {
		log.Printf("outbox: list pending: %v", err)
		return 0
	}
	sent := 0
	for _, m := range msgs {
		if err := d.client.PublishRaw(m.Topic, m.Payload); err != nil {
			log.Printf("outbox: publish %d (%s) to %s: %v", m.ID, m.MsgType, m.Topic, err)
			if ferr := d.db.FailOutbox(m.ID, err.Error()); ferr != nil {
				log.Printf("outbox: record failure %d: %v", m.ID, ferr)
			}
			continue
		}
		if err := d.db.AckOutbox(m.ID); err != nil {
			log.Printf("outbox: ack %d: %v", m.ID, err)
			continue
		}
		sent++
		if d.OnPublished != nil {
			d.OnPublished(m)
		}
	}
	return sent
}
