package live_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/fakeserver"
	"chat-client/internal/live"
	"chat-client/internal/models"
)

// recorder buffers every callback so tests can wait on them without racing
// the read pump.
type recorder struct {
	messages     chan models.Message
	presence     chan []string
	typing       chan string
	typingStops  chan string
	disconnected chan string
}

func newRecorder() *recorder {
	return &recorder{
		messages:     make(chan models.Message, 16),
		presence:     make(chan []string, 16),
		typing:       make(chan string, 16),
		typingStops:  make(chan string, 16),
		disconnected: make(chan string, 1),
	}
}

func (r *recorder) handlers() live.Handlers {
	return live.Handlers{
		Message:       func(msg models.Message) { r.messages <- msg },
		Presence:      func(ids []string) { r.presence <- ids },
		TypingStarted: func(id string) { r.typing <- id },
		TypingStopped: func(id string) { r.typingStops <- id },
		Disconnected:  func(reason string) { r.disconnected <- reason },
	}
}

func waitMessage(t *testing.T, r *recorder) models.Message {
	t.Helper()
	select {
	case msg := <-r.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return models.Message{}
	}
}

func TestSendAndReceiveInRoom(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()
	srv.SeedRoom("general", "alice", "bob")

	aliceRec := newRecorder()
	alice, err := live.Dial(context.Background(), srv.WSURL(), srv.Token("alice"), "alice", "general", aliceRec.handlers())
	require.NoError(t, err)
	defer alice.Close()

	bobRec := newRecorder()
	bob, err := live.Dial(context.Background(), srv.WSURL(), srv.Token("bob"), "bob", "general", bobRec.handlers())
	require.NoError(t, err)
	defer bob.Close()

	assert.Equal(t, "general", alice.Room())

	// Presence converges to both identities once bob has joined.
	require.Eventually(t, func() bool {
		select {
		case ids := <-aliceRec.presence:
			return len(ids) == 2
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.Send("hello"))

	got := waitMessage(t, bobRec)
	assert.Equal(t, "general", got.Room)
	assert.Equal(t, "alice", got.Sender)
	assert.Equal(t, "hello", got.Content)
	assert.NotZero(t, got.ID)

	// The sender receives its own message back as well.
	echo := waitMessage(t, aliceRec)
	assert.Equal(t, got.ID, echo.ID)
}

func TestTypingNoticesCarryServerIdentity(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()
	srv.SeedRoom("general", "alice", "bob")

	aliceRec := newRecorder()
	alice, err := live.Dial(context.Background(), srv.WSURL(), srv.Token("alice"), "alice", "general", aliceRec.handlers())
	require.NoError(t, err)
	defer alice.Close()

	bobRec := newRecorder()
	bob, err := live.Dial(context.Background(), srv.WSURL(), srv.Token("bob"), "bob", "general", bobRec.handlers())
	require.NoError(t, err)
	defer bob.Close()

	require.NoError(t, alice.Typing())
	select {
	case id := <-bobRec.typing:
		assert.Equal(t, "alice", id)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for typing notice")
	}

	require.NoError(t, alice.StopTyping())
	select {
	case id := <-bobRec.typingStops:
		assert.Equal(t, "alice", id)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stop notice")
	}
}

func TestBackgroundChannelSeesMemberRoomTraffic(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()
	srv.SeedRoom("general", "alice", "bob")
	srv.SeedRoom("other", "carol")

	bobRec := newRecorder()
	bob, err := live.Dial(context.Background(), srv.WSURL(), srv.Token("bob"), "bob", "", bobRec.handlers())
	require.NoError(t, err)
	defer bob.Close()

	srv.PushMessage("general", "alice", "for bob")
	got := waitMessage(t, bobRec)
	assert.Equal(t, "general", got.Room)
	assert.Equal(t, "for bob", got.Content)

	// Traffic in rooms bob is not a member of never reaches the session
	// channel.
	srv.PushMessage("other", "carol", "not for bob")
	select {
	case msg := <-bobRec.messages:
		t.Fatalf("unexpected message %q from room %q", msg.Content, msg.Room)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCloseIsIdempotentAndStopsSends(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()
	srv.SeedRoom("general", "alice")

	rec := newRecorder()
	ch, err := live.Dial(context.Background(), srv.WSURL(), srv.Token("alice"), "alice", "general", rec.handlers())
	require.NoError(t, err)

	ch.Close()
	ch.Close()

	require.ErrorIs(t, ch.Send("late"), live.ErrChannelClosed)
	require.ErrorIs(t, ch.Typing(), live.ErrChannelClosed)

	// An explicit close never surfaces as a disconnect.
	select {
	case reason := <-rec.disconnected:
		t.Fatalf("unexpected disconnect callback: %s", reason)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestServerDropFiresDisconnected(t *testing.T) {
	srv := fakeserver.New()
	srv.SeedRoom("general", "alice")

	rec := newRecorder()
	ch, err := live.Dial(context.Background(), srv.WSURL(), srv.Token("alice"), "alice", "general", rec.handlers())
	require.NoError(t, err)
	defer ch.Close()

	srv.Close()

	select {
	case reason := <-rec.disconnected:
		assert.NotEmpty(t, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect callback")
	}
}

// liveActive reads the current value of the active-connections gauge for a
// scope from the default registry.
func liveActive(t *testing.T, scope string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "chatclient_live_active_connections" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "scope" && label.GetValue() == scope {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func TestActiveGaugeReleasedOnServerDrop(t *testing.T) {
	srv := fakeserver.New()
	srv.SeedRoom("general", "alice")

	before := liveActive(t, "room")

	rec := newRecorder()
	ch, err := live.Dial(context.Background(), srv.WSURL(), srv.Token("alice"), "alice", "general", rec.handlers())
	require.NoError(t, err)
	assert.Equal(t, before+1, liveActive(t, "room"))

	srv.Close()
	select {
	case <-rec.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect callback")
	}
	assert.Equal(t, before, liveActive(t, "room"))

	// A later explicit close must not decrement a second time.
	ch.Close()
	assert.Equal(t, before, liveActive(t, "room"))
}

func TestDialRejectsBadToken(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()

	_, err := live.Dial(context.Background(), srv.WSURL(), "garbage", "alice", "general", live.Handlers{})
	require.Error(t, err)
}
