package event

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const SubscriberQueueSize = 20

type EventType string

const (
	RequestAcceptedEvent EventType = "mint.requested"
	MintCompletedEvent   EventType = "mint.completed"
)

type SubscriberId int

type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Feed is an append-only log of events. Subscribers read it from any offset
// at their own pace; Publish never waits on a subscriber.
type Feed struct {
	mu          sync.RWMutex
	events      []Event
	wake        chan struct{}
	subscribers map[SubscriberId]*subscription
	lastSubId   SubscriberId
	metrics     *feedMetrics
	logger      logrus.FieldLogger
	wg          sync.WaitGroup
}

type subscription struct {
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscription) stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

func NewFeed(promRegistry prometheus.Registerer, logger logrus.FieldLogger) *Feed {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	f := &Feed{
		wake:        make(chan struct{}),
		subscribers: make(map[SubscriberId]*subscription),
		logger:      logger,
	}
	if promRegistry != nil {
		f.initMetrics(promRegistry)
	}
	return f
}

// Publish appends an event and wakes every waiting subscriber.
func (f *Feed) Publish(eventType EventType, data any) Event {
	f.mu.Lock()
	evt := Event{
		Seq:       uint64(len(f.events)),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	f.events = append(f.events, evt)
	close(f.wake)
	f.wake = make(chan struct{})
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
	f.logger.WithFields(logrus.Fields{
		"seq":  evt.Seq,
		"type": eventType,
	}).Debug("event published")
	return evt
}

// Len returns the sequence number the next published event will get.
func (f *Feed) Len() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return uint64(len(f.events))
}

// Since returns a snapshot of every event with Seq >= from.
func (f *Feed) Since(from uint64) []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if from >= uint64(len(f.events)) {
		return nil
	}
	out := make([]Event, len(f.events)-int(from))
	copy(out, f.events[from:])
	return out
}

// Subscribe streams every event with Seq >= from, then follows new events
// until Unsubscribe or Stop closes the channel.
func (f *Feed) Subscribe(from uint64) (SubscriberId, <-chan Event) {
	sub := &subscription{done: make(chan struct{})}
	ch := make(chan Event, SubscriberQueueSize)

	f.mu.Lock()
	subId := f.lastSubId + 1
	f.lastSubId = subId
	f.subscribers[subId] = sub
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.subscribers.Inc()
	}

	f.wg.Add(1)
	go f.follow(sub, ch, from)
	return subId, ch
}

// SubscribeFunc calls handlerFunc for every event from offset onwards in its own goroutine.
func (f *Feed) SubscribeFunc(from uint64, handlerFunc func(Event)) SubscriberId {
	subId, ch := f.Subscribe(from)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for evt := range ch {
			handlerFunc(evt)
		}
	}()
	return subId
}

func (f *Feed) follow(sub *subscription, ch chan<- Event, cursor uint64) {
	defer f.wg.Done()
	defer close(ch)
	for {
		f.mu.RLock()
		var pending []Event
		if cursor < uint64(len(f.events)) {
			// events are never modified once appended
			pending = f.events[cursor:len(f.events)]
		}
		wake := f.wake
		f.mu.RUnlock()

		for _, evt := range pending {
			select {
			case ch <- evt:
				cursor++
			case <-sub.done:
				return
			}
		}
		if len(pending) > 0 {
			continue
		}
		select {
		case <-wake:
		case <-sub.done:
			return
		}
	}
}

func (f *Feed) Unsubscribe(subId SubscriberId) {
	f.mu.Lock()
	sub, ok := f.subscribers[subId]
	delete(f.subscribers, subId)
	f.mu.Unlock()
	if !ok {
		return
	}
	sub.stop()
	if f.metrics != nil {
		f.metrics.subscribers.Dec()
	}
}

// Stop closes every subscription and waits for their goroutines to exit.
// The history is kept and new subscriptions may still be made.
func (f *Feed) Stop() {
	f.mu.Lock()
	subs := f.subscribers
	f.subscribers = make(map[SubscriberId]*subscription)
	f.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
	if f.metrics != nil {
		f.metrics.subscribers.Set(0)
	}
	f.wg.Wait()
}
