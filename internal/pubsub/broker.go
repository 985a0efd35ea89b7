// Package pubsub — транспорт сообщений внутри процесса: топики (рассылка по комнате)
// и очереди (адресная доставка в сессию).
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var ErrClosed = errors.New("broker is closed")

type Message struct {
	Destination string
	Body        json.RawMessage
}

// Subscriber не должен блокировать: переполненный получатель просто теряет сообщение.
type Subscriber interface {
	TrySend(msg Message) bool
}

// SubscriberFunc — адаптер для функций.
type SubscriberFunc func(msg Message) bool

func (f SubscriberFunc) TrySend(msg Message) bool { return f(msg) }

// Result — итог рассылки в топик.
type Result struct {
	Delivered int
	Dropped   int
}

type binding struct {
	id  uint64
	sub Subscriber
}

type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]Subscriber
	queues map[string]binding
	nextID uint64
	closed bool

	inflight sync.WaitGroup
}

func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]map[uint64]Subscriber),
		queues: make(map[string]binding),
	}
}

// Subscribe подписывает на топик. Сообщения, опубликованные до подписки, не приходят.
func (b *Broker) Subscribe(topic string, sub Subscriber) (cancel func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	set, ok := b.topics[topic]
	if !ok {
		set = make(map[uint64]Subscriber)
		b.topics[topic] = set
	}
	set[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.topics[topic]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(b.topics, topic)
				}
			}
		})
	}
}

// Bind привязывает очередь к получателю. Новая привязка вытесняет старую;
// cancel старой привязки после этого ничего не делает.
func (b *Broker) Bind(queue string, sub Subscriber) (cancel func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.queues[queue] = binding{id: id, sub: sub}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if cur, ok := b.queues[queue]; ok && cur.id == id {
				delete(b.queues, queue)
			}
		})
	}
}

// begin регистрирует публикацию как «в полёте»; после Shutdown возвращает ErrClosed.
func (b *Broker) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	b.inflight.Add(1)
	return nil
}

// Publish рассылает сообщение текущим подписчикам топика, не дожидаясь их.
func (b *Broker) Publish(ctx context.Context, topic string, body json.RawMessage) (Result, error) {
	if err := b.begin(ctx); err != nil {
		return Result{}, err
	}
	defer b.inflight.Done()

	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.topics[topic]))
	for _, s := range b.topics[topic] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	msg := Message{Destination: topic, Body: body}
	var res Result
	for _, s := range subs {
		if s.TrySend(msg) {
			res.Delivered++
		} else {
			res.Dropped++
		}
	}
	return res, nil
}

// Send доставляет сообщение в очередь. false — очередь не привязана или получатель переполнен.
func (b *Broker) Send(ctx context.Context, queue string, body json.RawMessage) (bool, error) {
	if err := b.begin(ctx); err != nil {
		return false, err
	}
	defer b.inflight.Done()

	b.mu.RLock()
	bd, ok := b.queues[queue]
	b.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return bd.sub.TrySend(Message{Destination: queue, Body: body}), nil
}

// Shutdown закрывает брокер для новых публикаций и ждёт завершения текущих.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
