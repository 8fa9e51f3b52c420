package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventTipReceived = "tip-received"
	realtimeEventHeartbeat   = "heartbeat"
	realtimeSourceBackend    = "tipjar-backend"
	defaultRealtimeBuffer    = 16
)

// RealtimeMessage announces a committed tip to subscribers of its recipient.
type RealtimeMessage struct {
	Recipient string
	EventType string
	Address   string
	Sender    string
	Amount    uint64
	Message   string
	Nonce     uint8
	Timestamp time.Time
}

// RealtimeDispatcher fans tip events out to per-recipient subscribers. A slow
// subscriber whose buffer is full misses events instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher(bufferSize int) *RealtimeDispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultRealtimeBuffer
	}
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers for events addressed to recipient until ctx ends or the
// returned cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, recipient string) (<-chan RealtimeMessage, func()) {
	if recipient == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(recipient, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(recipient, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.Recipient == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, subscriber := range d.subscribers[message.Recipient] {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many streams currently follow recipient.
func (d *RealtimeDispatcher) SubscriberCount(recipient string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[recipient])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(recipient string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[recipient]; !ok {
		d.subscribers[recipient] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[recipient][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(recipient string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[recipient]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, recipient)
		}
	}
	d.mu.Unlock()
}
