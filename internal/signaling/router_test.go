package signaling

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/meet-service/internal/domain"
	"github.com/cwrk-planet/meet-service/internal/presence"
	"github.com/cwrk-planet/meet-service/internal/pubsub"
)

type recorder struct {
	got []pubsub.Message
}

func (r *recorder) TrySend(m pubsub.Message) bool {
	r.got = append(r.got, m)
	return true
}

type fixture struct {
	router   *Router
	broker   *pubsub.Broker
	presence *presence.Tracker
	topic    map[string]*recorder
	queue    map[string]*recorder
}

// комната ROOM0001: alice (s1), bob (s2) и carol (s3); dave (s4) — в другой комнате.
func newFixture() *fixture {
	f := &fixture{
		broker:   pubsub.NewBroker(),
		presence: presence.New(),
		topic:    map[string]*recorder{},
		queue:    map[string]*recorder{},
	}
	f.router = NewRouter(f.broker, f.presence)

	for sid, code := range map[string]string{"s1": "ROOM0001", "s2": "ROOM0001", "s3": "ROOM0001", "s4": "ROOM0002"} {
		f.presence.Add(sid, code)
		f.topic[sid] = &recorder{}
		f.queue[sid] = &recorder{}
		f.broker.Subscribe(pubsub.TopicSignal(code), f.topic[sid])
		f.broker.Bind(pubsub.QueueSignal(sid), f.queue[sid])
	}
	return f
}

func (f *fixture) total() int {
	n := 0
	for _, r := range f.topic {
		n += len(r.got)
	}
	for _, r := range f.queue {
		n += len(r.got)
	}
	return n
}

func TestRoute_TargetedGoesOnlyToTargetQueue(t *testing.T) {
	f := newFixture()
	body := json.RawMessage(`{"type":"offer","senderSessionId":"s1","targetSessionId":"s2","data":{"sdp":"v=0\r\n  o=- 1 2"}}`)

	out, err := f.router.Route(context.Background(), "ROOM0001", body)
	require.NoError(t, err)
	assert.Equal(t, Unicast, out)

	require.Len(t, f.queue["s2"].got, 1)
	assert.Equal(t, string(body), string(f.queue["s2"].got[0].Body), "payload must pass through untouched")
	assert.Equal(t, 1, f.total())
}

func TestRoute_UntargetedReachesEveryRoomSubscriber(t *testing.T) {
	f := newFixture()
	body := json.RawMessage(`{"type":"ice-candidate","senderSessionId":"s1","data":{"candidate":"c"}}`)

	out, err := f.router.Route(context.Background(), "ROOM0001", body)
	require.NoError(t, err)
	assert.Equal(t, Broadcast, out)

	for _, sid := range []string{"s1", "s2", "s3"} {
		assert.Len(t, f.topic[sid].got, 1, sid)
	}
	assert.Empty(t, f.topic["s4"].got)
	assert.Equal(t, 3, f.total())
}

func TestRoute_DisconnectedTargetIsDropped(t *testing.T) {
	f := newFixture()
	f.presence.Remove("s2")

	out, err := f.router.Route(context.Background(), "ROOM0001",
		json.RawMessage(`{"type":"answer","senderSessionId":"s1","targetSessionId":"s2","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, Dropped, out)
	assert.Zero(t, f.total())
}

func TestRoute_TargetInOtherRoomIsDropped(t *testing.T) {
	f := newFixture()

	out, err := f.router.Route(context.Background(), "ROOM0001",
		json.RawMessage(`{"type":"offer","senderSessionId":"s1","targetSessionId":"s4","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, Dropped, out)
	assert.Zero(t, f.total())
}

func TestRoute_RejectsMalformed(t *testing.T) {
	f := newFixture()

	_, err := f.router.Route(context.Background(), "ROOM0001", json.RawMessage(`{"type":"bye"}`))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.router.Route(context.Background(), "ROOM0001", json.RawMessage(`not json`))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, f.total())
}

func TestRoute_ClosedBroker(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.broker.Shutdown(context.Background()))

	_, err := f.router.Route(context.Background(), "ROOM0001",
		json.RawMessage(`{"type":"offer","senderSessionId":"s1","data":{}}`))
	assert.ErrorIs(t, err, pubsub.ErrClosed)
}
