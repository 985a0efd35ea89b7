package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/meet-service/internal/idgen"
	"github.com/cwrk-planet/meet-service/internal/memstore"
	"github.com/cwrk-planet/meet-service/internal/presence"
	"github.com/cwrk-planet/meet-service/internal/pubsub"
	"github.com/cwrk-planet/meet-service/internal/ratelimit"
	"github.com/cwrk-planet/meet-service/internal/service"
	"github.com/cwrk-planet/meet-service/internal/signaling"
	"github.com/cwrk-planet/meet-service/internal/syncx"
)

type fixture struct {
	srv     *httptest.Server
	ws      *Server
	rooms   *service.RoomService
	members *service.MemberService
	chat    *service.ChatService
}

func newFixture(t *testing.T, limiter ratelimit.Limiter) *fixture {
	t.Helper()
	ms := memstore.New()
	pr := presence.New()
	br := pubsub.NewBroker()
	locks := syncx.NewKeyedMutex()
	ids := idgen.New()

	f := &fixture{
		rooms:   service.NewRoomService(ms.Rooms(), pr, ids, locks),
		members: service.NewMemberService(ms.Rooms(), ms.Participants(), pr, br, ids, locks),
		chat:    service.NewChatService(ms.Rooms(), ms.Chat(), br, ids, locks),
	}
	f.ws = NewServer(Deps{
		Broker:   br,
		Presence: pr,
		Router:   signaling.NewRouter(br, pr),
		Rooms:    f.rooms,
		Members:  f.members,
		Chat:     f.chat,
		Limiter:  limiter,
	}, Config{PingPeriod: time.Second, SendBuffer: 32})

	f.srv = httptest.NewServer(f.ws)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.ws.Shutdown(ctx)
		f.srv.Close()
	})
	return f
}

type peer struct {
	t    *testing.T
	conn *websocket.Conn
	sid  string
}

func (f *fixture) connect(t *testing.T, sid string) *peer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?sessionId=" + sid
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &peer{t: t, conn: conn, sid: sid}
}

func (p *peer) write(frame string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (p *peer) subscribe(dest string) {
	p.write(`{"command":"SUBSCRIBE","destination":"` + dest + `"}`)
}

func (p *peer) send(dest, body string) {
	p.write(`{"command":"SEND","destination":"` + dest + `","body":` + body + `}`)
}

func (p *peer) read() []byte {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := p.conn.ReadMessage()
	require.NoError(p.t, err)
	return data
}

type received struct {
	Command     string          `json:"command"`
	Destination string          `json:"destination"`
	Body        json.RawMessage `json:"body"`
	Message     string          `json:"message"`
}

func (p *peer) next() received {
	p.t.Helper()
	var r received
	require.NoError(p.t, json.Unmarshal(p.read(), &r))
	return r
}

// barrier — кадры клиента обрабатываются по порядку, поэтому ответ ERROR
// на заведомо неверный кадр означает, что всё отправленное ранее уже применено.
func (p *peer) barrier() {
	p.t.Helper()
	p.write(`{"command":"NOOP"}`)
	for {
		r := p.next()
		if r.Command == CmdError && strings.Contains(r.Message, "NOOP") {
			return
		}
	}
}

// expectNothing проверяет, что до барьера не пришло ни одного MESSAGE.
func (p *peer) expectNothing() {
	p.t.Helper()
	p.write(`{"command":"NOOP"}`)
	r := p.next()
	assert.Equal(p.t, CmdError, r.Command, "unexpected frame %s %s", r.Destination, r.Body)
}

func (f *fixture) room(t *testing.T) (code string, alice, bob string) {
	t.Helper()
	ctx := context.Background()
	room, err := f.rooms.CreateRoom(ctx, "Standup")
	require.NoError(t, err)
	a, err := f.members.JoinRoom(ctx, room.RoomCode, "alice")
	require.NoError(t, err)
	b, err := f.members.JoinRoom(ctx, room.RoomCode, "bob")
	require.NoError(t, err)
	return room.RoomCode, a.SessionID, b.SessionID
}

func TestHandshakeRequiresConnectedSession(t *testing.T) {
	f := newFixture(t, nil)
	base := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"?sessionId=ghost", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStandupScenario(t *testing.T) {
	f := newFixture(t, nil)
	code, aliceSID, bobSID := f.room(t)

	alice := f.connect(t, aliceSID)
	bob := f.connect(t, bobSID)
	for _, p := range []*peer{alice, bob} {
		p.subscribe(pubsub.TopicSignal(code))
		p.subscribe(pubsub.TopicChat(code))
		p.subscribe(pubsub.TopicParticipant(code))
		p.barrier()
	}

	// targeted offer: только очередь bob, тело байт в байт
	offer := `{"type":"offer", "senderSessionId":"` + aliceSID + `","targetSessionId":"` + bobSID + `","data":{"sdp":"v=0 <a&b>"}}`
	alice.send("/app/signal/"+code, offer)

	got := bob.next()
	assert.Equal(t, CmdMessage, got.Command)
	assert.Equal(t, pubsub.QueueSignal(bobSID), got.Destination)
	assert.Equal(t, offer, string(got.Body))
	alice.expectNothing()

	// untargeted candidate: всем подписчикам сигнального топика
	cand := `{"type":"ice-candidate","senderSessionId":"` + bobSID + `","data":{"candidate":"c1"}}`
	bob.send("/app/signal/"+code, cand)
	for _, p := range []*peer{alice, bob} {
		got := p.next()
		assert.Equal(t, pubsub.TopicSignal(code), got.Destination)
		assert.JSONEq(t, cand, string(got.Body))
	}

	// chat без roomId: комната определяется по коду
	alice.send("/app/chat/"+code, `{"senderUsername":"alice","message":"hi bob"}`)
	for _, p := range []*peer{alice, bob} {
		got := p.next()
		require.Equal(t, pubsub.TopicChat(code), got.Destination)
		var cv service.ChatView
		require.NoError(t, json.Unmarshal(got.Body, &cv))
		assert.Equal(t, "alice", cv.SenderUsername)
		assert.Equal(t, aliceSID, cv.SenderSessionID)
		assert.Equal(t, "hi bob", cv.Message)
	}
	history, err := f.chat.GetHistoryByCode(context.Background(), code)
	require.NoError(t, err)
	require.Len(t, history, 1)

	// повторный join не рассылается
	join := `{"username":"bob","sessionId":"` + bobSID + `"}`
	bob.send("/app/participant/"+code+"/join", join)
	bob.send("/app/participant/"+code+"/join", join)
	got = alice.next()
	require.Equal(t, pubsub.TopicParticipant(code), got.Destination)
	var ev struct {
		Type        string          `json:"type"`
		Participant json.RawMessage `json:"participant"`
	}
	require.NoError(t, json.Unmarshal(got.Body, &ev))
	assert.Equal(t, "join", ev.Type)
	assert.JSONEq(t, join, string(ev.Participant))
	bob.barrier()
	alice.expectNothing()

	// обрыв соединения bob → leave для alice
	require.NoError(t, bob.conn.Close())
	got = alice.next()
	require.Equal(t, pubsub.TopicParticipant(code), got.Destination)
	require.NoError(t, json.Unmarshal(got.Body, &ev))
	assert.Equal(t, "leave", ev.Type)
	assert.Contains(t, string(ev.Participant), bobSID)

	connected, err := f.members.ListConnectedParticipants(context.Background(), history[0].RoomID)
	require.NoError(t, err)
	require.Len(t, connected, 1)
	assert.Equal(t, aliceSID, connected[0].SessionID)
}

func TestStatusFrameBroadcastsAndPersists(t *testing.T) {
	f := newFixture(t, nil)
	code, aliceSID, bobSID := f.room(t)

	alice := f.connect(t, aliceSID)
	bob := f.connect(t, bobSID)
	bob.subscribe(pubsub.TopicParticipant(code))
	bob.barrier()

	status := `{"sessionId":"` + aliceSID + `","isMuted":true}`
	alice.send("/app/participant/"+code+"/status", status)

	got := bob.next()
	assert.Equal(t, pubsub.TopicParticipant(code), got.Destination)
	assert.Equal(t, status, string(got.Body))

	_, ps, err := f.members.RoomDetails(context.Background(), code)
	require.NoError(t, err)
	for _, p := range ps {
		if p.SessionID == aliceSID {
			assert.True(t, p.IsMuted)
			assert.True(t, p.IsVideoEnabled)
		}
	}
}

func TestSubscriptionRules(t *testing.T) {
	f := newFixture(t, nil)
	code, aliceSID, bobSID := f.room(t)
	alice := f.connect(t, aliceSID)

	alice.subscribe(pubsub.QueueSignal(bobSID))
	r := alice.next()
	assert.Equal(t, CmdError, r.Command)
	assert.Contains(t, r.Message, "another session")

	alice.subscribe(pubsub.TopicChat("OTHER000"))
	r = alice.next()
	assert.Equal(t, CmdError, r.Command)

	alice.subscribe("/topic/unknown")
	r = alice.next()
	assert.Equal(t, CmdError, r.Command)

	alice.write(`{"command":"UNSUBSCRIBE","destination":"` + pubsub.TopicChat(code) + `"}`)
	r = alice.next()
	assert.Equal(t, CmdError, r.Command)
	assert.Contains(t, r.Message, "not subscribed")

	alice.write(`not json`)
	r = alice.next()
	assert.Equal(t, CmdError, r.Command)
	assert.Contains(t, r.Message, "malformed")

	// соединение живо после ошибок
	alice.subscribe(pubsub.TopicChat(code))
	alice.barrier()
}

func TestBadSignalKeepsConnection(t *testing.T) {
	f := newFixture(t, nil)
	code, aliceSID, _ := f.room(t)
	alice := f.connect(t, aliceSID)

	alice.send("/app/signal/"+code, `{"type":"bogus"}`)
	r := alice.next()
	assert.Equal(t, CmdError, r.Command)
	assert.Contains(t, r.Message, "unsupported signal type")

	alice.send("/app/chat/"+code, `{"senderUsername":"alice","message":"   "}`)
	r = alice.next()
	assert.Equal(t, CmdError, r.Command)
	alice.barrier()
}

func TestFramesStayInTheirRoom(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	codeA, aliceSID, _ := f.room(t)
	roomA, err := f.rooms.GetRoomByCode(ctx, codeA)
	require.NoError(t, err)
	roomB, err := f.rooms.CreateRoom(ctx, "Retro")
	require.NoError(t, err)
	carol, err := f.members.JoinRoom(ctx, roomB.RoomCode, "carol")
	require.NoError(t, err)

	alice := f.connect(t, aliceSID)
	watcher := f.connect(t, carol.SessionID)
	watcher.subscribe(pubsub.TopicChat(roomB.RoomCode))
	watcher.subscribe(pubsub.TopicParticipant(roomB.RoomCode))
	watcher.barrier()

	alice.send("/app/chat/"+codeA, `{"roomId":"`+roomB.ID+`","senderUsername":"alice","message":"hi"}`)
	r := alice.next()
	assert.Equal(t, CmdError, r.Command)
	assert.Contains(t, r.Message, "room id does not match")

	alice.send("/app/participant/"+codeA+"/status", `{"sessionId":"`+carol.SessionID+`","isMuted":true}`)
	r = alice.next()
	assert.Equal(t, CmdError, r.Command)

	alice.send("/app/participant/"+codeA+"/join", `{"username":"carol","sessionId":"`+carol.SessionID+`"}`)
	r = alice.next()
	assert.Equal(t, CmdError, r.Command)
	alice.barrier()
	watcher.expectNothing()

	hist, err := f.chat.GetHistory(ctx, roomB.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)
	_, ps, err := f.members.RoomDetails(ctx, roomB.RoomCode)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.False(t, ps[0].IsMuted)

	// совпадающий roomId принимается
	alice.subscribe(pubsub.TopicChat(codeA))
	alice.send("/app/chat/"+codeA, `{"roomId":"`+roomA.ID+`","senderUsername":"alice","message":"ok"}`)
	got := alice.next()
	assert.Equal(t, pubsub.TopicChat(codeA), got.Destination)
}

func TestRateLimitedFrames(t *testing.T) {
	f := newFixture(t, ratelimit.NewMemory(2, time.Minute))
	code, aliceSID, _ := f.room(t)
	alice := f.connect(t, aliceSID)

	alice.subscribe(pubsub.TopicChat(code))
	alice.subscribe(pubsub.TopicSignal(code))
	alice.subscribe(pubsub.TopicParticipant(code))

	r := alice.next()
	assert.Equal(t, CmdError, r.Command)
	assert.Equal(t, "rate limit exceeded", r.Message)
}

func TestReconnectReplacesConnection(t *testing.T) {
	f := newFixture(t, nil)
	code, aliceSID, bobSID := f.room(t)

	bob := f.connect(t, bobSID)
	first := f.connect(t, aliceSID)
	first.barrier()
	second := f.connect(t, aliceSID)
	second.barrier()
	assert.Equal(t, 2, f.ws.hub.Len())

	// первое соединение закрыто сервером
	require.NoError(t, first.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := first.conn.ReadMessage(); err != nil {
			break
		}
	}

	offer := `{"type":"offer","senderSessionId":"` + bobSID + `","targetSessionId":"` + aliceSID + `"}`
	bob.send("/app/signal/"+code, offer)
	got := second.next()
	assert.Equal(t, pubsub.QueueSignal(aliceSID), got.Destination)
	assert.Equal(t, offer, string(got.Body))

	// вытеснение не считается уходом участника
	_, ps, err := f.members.RoomDetails(context.Background(), code)
	require.NoError(t, err)
	assert.Len(t, ps, 2)
}

func TestAppRoute(t *testing.T) {
	cases := []struct {
		dest string
		kind appKind
		code string
	}{
		{"/app/signal/abc12345", appSignal, "ABC12345"},
		{"/app/chat/ABC12345", appChat, "ABC12345"},
		{"/app/participant/ABC12345/status", appStatus, "ABC12345"},
		{"/app/participant/ABC12345/join", appJoin, "ABC12345"},
		{"/app/participant/ABC12345/leave", appLeave, "ABC12345"},
		{"/app/participant/ABC12345/kick", appUnknown, ""},
		{"/app/signal/", appUnknown, ""},
		{"/topic/room/ABC12345/chat", appUnknown, ""},
	}
	for _, tc := range cases {
		kind, code := appRoute(tc.dest)
		assert.Equal(t, tc.kind, kind, tc.dest)
		assert.Equal(t, tc.code, code, tc.dest)
	}
}

func TestEncodeMessageKeepsBodyBytes(t *testing.T) {
	body := json.RawMessage(`{"sdp":"<x> & y",  "n":1}`)
	out, err := encodeMessage("/queue/signal/s1", body)
	require.NoError(t, err)
	assert.Equal(t, `{"command":"MESSAGE","destination":"/queue/signal/s1","body":{"sdp":"<x> & y",  "n":1}}`, string(out))
	assert.True(t, json.Valid(out))
}
