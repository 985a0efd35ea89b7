package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	ch chan Message
}

func newInbox(n int) *inbox { return &inbox{ch: make(chan Message, n)} }

func (i *inbox) TrySend(m Message) bool {
	select {
	case i.ch <- m:
		return true
	default:
		return false
	}
}

func (i *inbox) drain() []Message {
	var out []Message
	for {
		select {
		case m := <-i.ch:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestBroker_TopicFanOut(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()
	a, c, other := newInbox(4), newInbox(4), newInbox(4)
	b.Subscribe(TopicSignal("ROOM0001"), a)
	cancel := b.Subscribe(TopicSignal("ROOM0001"), c)
	b.Subscribe(TopicSignal("ROOM0002"), other)

	res, err := b.Publish(ctx, TopicSignal("ROOM0001"), json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, Result{Delivered: 2}, res)

	cancel()
	cancel()
	_, err = b.Publish(ctx, TopicSignal("ROOM0001"), json.RawMessage(`{"x":2}`))
	require.NoError(t, err)

	assert.Len(t, a.drain(), 2)
	got := c.drain()
	require.Len(t, got, 1)
	assert.Equal(t, TopicSignal("ROOM0001"), got[0].Destination)
	assert.JSONEq(t, `{"x":1}`, string(got[0].Body))
	assert.Empty(t, other.drain())
}

func TestBroker_LateSubscriberMissesEarlierMessages(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()
	_, err := b.Publish(ctx, TopicChat("R"), json.RawMessage(`1`))
	require.NoError(t, err)

	late := newInbox(1)
	b.Subscribe(TopicChat("R"), late)
	assert.Empty(t, late.drain())
}

func TestBroker_FullSubscriberIsDropped(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()
	slow := newInbox(1)
	b.Subscribe(TopicChat("R"), slow)

	_, _ = b.Publish(ctx, TopicChat("R"), json.RawMessage(`1`))
	res, err := b.Publish(ctx, TopicChat("R"), json.RawMessage(`2`))
	require.NoError(t, err)
	assert.Equal(t, Result{Dropped: 1}, res)
}

func TestBroker_QueueBinding(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()

	ok, err := b.Send(ctx, QueueSignal("s1"), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, ok, "unbound queue")

	first, second := newInbox(1), newInbox(1)
	cancelFirst := b.Bind(QueueSignal("s1"), first)
	b.Bind(QueueSignal("s1"), second)
	cancelFirst() // вытесненная привязка не снимает новую

	ok, err = b.Send(ctx, QueueSignal("s1"), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, first.drain())
	assert.Len(t, second.drain(), 1)
}

func TestBroker_ShutdownDrainsAndRejects(t *testing.T) {
	b := NewBroker()
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	b.Subscribe(TopicChat("R"), SubscriberFunc(func(Message) bool {
		started.Done()
		<-release
		return true
	}))

	published := make(chan error, 1)
	go func() {
		_, err := b.Publish(context.Background(), TopicChat("R"), json.RawMessage(`1`))
		published <- err
	}()
	started.Wait()

	shut := make(chan error, 1)
	go func() { shut <- b.Shutdown(context.Background()) }()

	select {
	case <-shut:
		t.Fatal("shutdown returned with a publish in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-published)
	require.NoError(t, <-shut)

	_, err := b.Publish(context.Background(), TopicChat("R"), json.RawMessage(`1`))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = b.Send(context.Background(), QueueSignal("s"), json.RawMessage(`1`))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBroker_ShutdownHonoursContext(t *testing.T) {
	b := NewBroker()
	block := make(chan struct{})
	defer close(block)
	entered := make(chan struct{})
	b.Subscribe(TopicChat("R"), SubscriberFunc(func(Message) bool {
		close(entered)
		<-block
		return true
	}))
	go func() { _, _ = b.Publish(context.Background(), TopicChat("R"), json.RawMessage(`1`)) }()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Shutdown(ctx), context.DeadlineExceeded)
}

func TestRoomOfTopic(t *testing.T) {
	code, ok := RoomOfTopic(TopicParticipant("ABCD1234"))
	assert.True(t, ok)
	assert.Equal(t, "ABCD1234", code)

	_, ok = RoomOfTopic("/topic/room/ABCD1234/other")
	assert.False(t, ok)
	_, ok = RoomOfTopic(QueueSignal("s1"))
	assert.False(t, ok)
	assert.True(t, IsQueue(QueueSignal("s1")))
	assert.True(t, IsTopic(TopicChat("X")))
}
