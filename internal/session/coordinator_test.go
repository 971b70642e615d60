package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisadapter "github.com/communet/sessiond/internal/adapters/redis"
	"github.com/communet/sessiond/internal/logging"
	"github.com/communet/sessiond/internal/session"
	"github.com/communet/sessiond/pkg/domain"
	"github.com/communet/sessiond/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChat implements ports.ChatBridge in memory.
type fakeChat struct {
	mu          sync.Mutex
	rooms       map[string]int64
	nextID      int64
	createCalls int
	messages    []domain.SystemMessage
	softDeleted []int64
	flushed     []string
	createErr   error
}

func newFakeChat() *fakeChat {
	return &fakeChat{rooms: map[string]int64{}, nextID: 42}
}

func (f *fakeChat) CreateOrGetRoom(_ context.Context, sessionID string, _ []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return 0, f.createErr
	}
	id, ok := f.rooms[sessionID]
	if !ok {
		id = f.nextID
		f.nextID++
		f.rooms[sessionID] = id
	}
	return id, nil
}

func (f *fakeChat) PostSystemMessage(_ context.Context, msg domain.SystemMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeChat) SoftDeleteRoom(_ context.Context, roomID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.softDeleted = append(f.softDeleted, roomID)
	return nil
}

func (f *fakeChat) FlushBufferedMessages(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed = append(f.flushed, sessionID)
	return nil
}

func (f *fakeChat) messagesOfKind(kind domain.MessageKind) []domain.SystemMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SystemMessage
	for _, m := range f.messages {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// fakeDirectory implements ports.IdentityDirectory.
type fakeDirectory struct {
	members map[string]domain.Participant
}

func (f *fakeDirectory) Resolve(_ context.Context, identity string) (domain.Participant, error) {
	p, ok := f.members[identity]
	if !ok {
		return domain.Participant{}, fmt.Errorf("%s: %w", identity, domain.ErrParticipantNotFound)
	}
	return p, nil
}

// fakeTokens implements ports.TokenIssuer deterministically.
type fakeTokens struct{}

func (fakeTokens) Issue(identity, _, roomName string) (string, error) {
	return "token:" + identity + ":" + roomName, nil
}

// fakeProvider implements ports.RoomProvider and signals each call.
type fakeProvider struct {
	mu    sync.Mutex
	calls []string
	err   error
	done  chan string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{done: make(chan string, 16)}
}

func (f *fakeProvider) DeleteRoom(_ context.Context, roomName string) error {
	f.mu.Lock()
	f.calls = append(f.calls, roomName)
	err := f.err
	f.mu.Unlock()
	f.done <- roomName
	return err
}

// fakeQueue records enqueued retry items.
type fakeQueue struct {
	mu    sync.Mutex
	items []struct {
		room     string
		attempts int
	}
}

func (f *fakeQueue) Add(roomName string, attempts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, struct {
		room     string
		attempts int
	}{roomName, attempts})
}

type fixture struct {
	store    *redisadapter.Store
	mr       *miniredis.Miniredis
	chat     *fakeChat
	dir      *fakeDirectory
	provider *fakeProvider
	queue    *fakeQueue
}

func setup(t *testing.T, opts ...session.Option) (*fixture, *session.Coordinator) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	f := &fixture{
		store: redisadapter.NewFromClient(client),
		mr:    mr,
		chat:  newFakeChat(),
		dir: &fakeDirectory{members: map[string]domain.Participant{
			"t1@example.com": {Identity: "t1@example.com", Name: "Kim", Nickname: "Dr. Kim"},
			"c7@example.com": {Identity: "c7@example.com", Name: "Lee"},
		}},
		provider: newFakeProvider(),
		queue:    &fakeQueue{},
	}

	names := 0
	base := []session.Option{
		session.WithLogger(logging.NewNop()),
		session.WithRoomNameFunc(func() string {
			names++
			return fmt.Sprintf("room-%d", names)
		}),
	}

	coord := session.New(f.store, f.chat, f.dir, fakeTokens{}, f.provider, f.queue,
		append(base, opts...)...)
	return f, coord
}

func TestCreateOrRejoin_CreatesSession(t *testing.T) {
	f, coord := setup(t)
	ctx := context.Background()

	tok, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	require.NoError(t, err)
	assert.Equal(t, "room-1", tok.RoomName)
	assert.Equal(t, int64(42), tok.ChatRoomID)
	assert.Equal(t, "token:t1@example.com:room-1", tok.Token)

	// Index symmetry: all three mappings resolve and agree.
	room, err := f.store.TherapistRoom(ctx, "t1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "room-1", room)
	room, err = f.store.ClientRoom(ctx, "c7@example.com")
	require.NoError(t, err)
	assert.Equal(t, "room-1", room)
	id, err := f.store.ChatRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, tok.ChatRoomID, id)

	client, err := f.store.SessionClient(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "c7@example.com", client)

	enters := f.chat.messagesOfKind(domain.MessageEnter)
	require.Len(t, enters, 1)
	assert.Equal(t, "t1@example.com", enters[0].Sender)
	assert.Equal(t, "Dr. Kim joined the session", enters[0].Content)
}

func TestCreateOrRejoin_Idempotent(t *testing.T) {
	f, coord := setup(t)
	ctx := context.Background()

	first, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	require.NoError(t, err)

	second, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.RoomName, second.RoomName)
	assert.Equal(t, first.ChatRoomID, second.ChatRoomID)
	assert.Equal(t, 1, f.chat.createCalls, "rejoin must not touch chat room creation")
	assert.Len(t, f.chat.messagesOfKind(domain.MessageEnter), 1, "rejoin posts no duplicate therapist ENTER")
}

func TestCreateOrRejoin_UnknownClient(t *testing.T) {
	f, coord := setup(t)
	ctx := context.Background()

	_, err := coord.CreateOrRejoin(ctx, "t1@example.com", "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)

	// Nothing may be left behind: the identity was resolved before any write.
	_, err = f.store.TherapistRoom(ctx, "t1@example.com")
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

func TestCreateOrRejoin_MissingChatIndexIsInconsistency(t *testing.T) {
	f, coord := setup(t)
	ctx := context.Background()

	// Simulate an earlier partial write: index exists, chat mapping does not.
	f.mr.Set("user:therapist:t1@example.com", "orphan-room")

	_, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	assert.ErrorIs(t, err, domain.ErrChatRoomIndexMissing)
	assert.NotErrorIs(t, err, domain.ErrNoSession)
}

func TestCreateOrRejoin_ChatCreationFailureLeavesNoIndices(t *testing.T) {
	f, coord := setup(t)
	ctx := context.Background()

	f.chat.createErr = errors.New("chat service down")

	_, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	require.Error(t, err)

	// The chat room is created before any index points at it, so a failed
	// creation leaves both identity indices and the chat index unwritten.
	_, err = f.store.TherapistRoom(ctx, "t1@example.com")
	assert.ErrorIs(t, err, domain.ErrNoSession)
	assert.False(t, f.mr.Exists("chat:session:room-1"))

	// And the next attempt can start over cleanly.
	f.chat.createErr = nil
	tok, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	require.NoError(t, err)
	assert.Equal(t, "room-2", tok.RoomName)
}

func TestJoinAsClient(t *testing.T) {
	f, coord := setup(t)
	ctx := context.Background()

	created, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	require.NoError(t, err)

	joined, err := coord.JoinAsClient(ctx, "c7@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.RoomName, joined.RoomName)
	assert.Equal(t, created.ChatRoomID, joined.ChatRoomID)
	assert.Equal(t, "token:c7@example.com:"+created.RoomName, joined.Token)

	// Presence ping: every join posts another ENTER, no deduplication.
	_, err = coord.JoinAsClient(ctx, "c7@example.com")
	require.NoError(t, err)

	var clientEnters int
	for _, m := range f.chat.messagesOfKind(domain.MessageEnter) {
		if m.Sender == "c7@example.com" {
			clientEnters++
		}
	}
	assert.Equal(t, 2, clientEnters)
}

func TestJoinAsClient_NoSession(t *testing.T) {
	_, coord := setup(t)

	_, err := coord.JoinAsClient(context.Background(), "c7@example.com")
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

func TestTeardown_FullFlow(t *testing.T) {
	f, coord := setup(t)
	ctx := context.Background()

	tok, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	require.NoError(t, err)

	require.NoError(t, coord.Teardown(ctx, "t1@example.com"))

	// All store entries are gone.
	assert.False(t, f.mr.Exists("session:room:"+tok.RoomName))
	assert.False(t, f.mr.Exists("user:therapist:t1@example.com"))
	assert.False(t, f.mr.Exists("user:client:c7@example.com"))
	assert.False(t, f.mr.Exists("chat:session:"+tok.RoomName))

	// Chat side reconciled: LEAVE stored, room soft-deleted, buffer flushed.
	leaves := f.chat.messagesOfKind(domain.MessageLeave)
	require.Len(t, leaves, 1)
	assert.Equal(t, "session ended", leaves[0].Content)
	assert.Equal(t, []int64{tok.ChatRoomID}, f.chat.softDeleted)
	assert.Equal(t, []string{tok.RoomName}, f.chat.flushed)

	// Provider deletion fired asynchronously.
	select {
	case room := <-f.provider.done:
		assert.Equal(t, tok.RoomName, room)
	case <-time.After(time.Second):
		t.Fatal("provider deletion was never fired")
	}
	assert.Empty(t, f.queue.items)
}

func TestTeardown_Idempotent(t *testing.T) {
	f, coord := setup(t)
	ctx := context.Background()

	_, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	require.NoError(t, err)

	require.NoError(t, coord.Teardown(ctx, "t1@example.com"))
	<-f.provider.done

	// The second teardown reports "no session", a caller-level condition, and
	// never an inconsistency for already-cleaned resources.
	err = coord.Teardown(ctx, "t1@example.com")
	assert.ErrorIs(t, err, domain.ErrNoSession)
	assert.NotErrorIs(t, err, domain.ErrChatRoomIndexMissing)
}

func TestTeardown_ProviderFailureIsSwallowedAndQueued(t *testing.T) {
	f, coord := setup(t)
	ctx := context.Background()

	f.provider.err = errors.New("provider unreachable")

	tok, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	require.NoError(t, err)

	// Teardown is logically complete regardless of the provider outcome.
	require.NoError(t, coord.Teardown(ctx, "t1@example.com"))
	<-f.provider.done

	assert.Eventually(t, func() bool {
		f.queue.mu.Lock()
		defer f.queue.mu.Unlock()
		return len(f.queue.items) == 1
	}, time.Second, 5*time.Millisecond)

	f.queue.mu.Lock()
	assert.Equal(t, tok.RoomName, f.queue.items[0].room)
	assert.Equal(t, 1, f.queue.items[0].attempts)
	f.queue.mu.Unlock()
}

func TestTeardown_ChatAlreadyReconciled(t *testing.T) {
	f, coord := setup(t)
	ctx := context.Background()

	tok, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	require.NoError(t, err)

	// Simulate a previous teardown that finished the chat step before failing.
	require.NoError(t, f.store.DeleteChatRoom(ctx, tok.RoomName))

	require.NoError(t, coord.Teardown(ctx, "t1@example.com"))
	<-f.provider.done

	assert.Empty(t, f.chat.messagesOfKind(domain.MessageLeave))
	assert.Empty(t, f.chat.softDeleted)
}

func TestTeardown_MissingClientFieldIsInconsistency(t *testing.T) {
	f, coord := setup(t)
	ctx := context.Background()

	// Index present, record hash missing: an earlier partial write.
	f.mr.Set("user:therapist:t1@example.com", "half-room")

	err := coord.Teardown(ctx, "t1@example.com")
	assert.ErrorIs(t, err, domain.ErrSessionRecordIncomplete)
}

// flakyStore injects a failure between chat room creation and the chat index
// write, the crash window the ordering guarantee is about.
type flakyStore struct {
	ports.SessionStore
	failSetChatRoom int
}

func (s *flakyStore) SetChatRoom(ctx context.Context, roomName string, chatRoomID int64) error {
	if s.failSetChatRoom > 0 {
		s.failSetChatRoom--
		return errors.New("injected crash")
	}
	return s.SessionStore.SetChatRoom(ctx, roomName, chatRoomID)
}

func TestCreate_CrashBeforeChatIndexWriteIsRecoverable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := &flakyStore{
		SessionStore:    redisadapter.NewFromClient(client),
		failSetChatRoom: 1,
	}
	chat := newFakeChat()
	dir := &fakeDirectory{members: map[string]domain.Participant{
		"t1@example.com": {Identity: "t1@example.com"},
		"c7@example.com": {Identity: "c7@example.com"},
	}}

	coord := session.New(store, chat, dir, fakeTokens{}, newFakeProvider(), &fakeQueue{},
		session.WithLogger(logging.NewNop()),
		session.WithRoomNameFunc(func() string { return "abc-123" }),
	)
	ctx := context.Background()

	_, err = coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	require.Error(t, err, "the caller sees the failure and retries")

	// No identity index points anywhere yet, so the retry takes the create
	// path again; the idempotent chat-room call resolves the same room and the
	// index write completes this time.
	tok, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(42), tok.ChatRoomID)
	assert.Len(t, chat.rooms, 1, "no duplicate chat room may exist")

	id, err := store.ChatRoom(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, tok.ChatRoomID, id, "the chat room is fully indexed after recovery")
}

// stubVerifier drives HandleWebhook without real crypto.
type stubVerifier struct {
	event domain.WebhookEvent
	err   error
	calls int
}

func (s *stubVerifier) Verify([]byte, string) (domain.WebhookEvent, error) {
	s.calls++
	return s.event, s.err
}

func TestHandleWebhook_NeverTouchesState(t *testing.T) {
	verifier := &stubVerifier{event: domain.WebhookEvent{Event: "room_finished", Room: domain.WebhookRoom{Name: "room-1"}}}
	f, coord := setup(t, session.WithWebhookVerifier(verifier))
	ctx := context.Background()

	tok, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
	require.NoError(t, err)

	coord.HandleWebhook(ctx, []byte(`{"event":"room_finished"}`), "Bearer x")
	assert.Equal(t, 1, verifier.calls)

	// Verification failure is dropped without reaching the caller or the store.
	verifier.err = domain.ErrWebhookVerification
	coord.HandleWebhook(ctx, []byte(`{}`), "Bearer y")

	room, err := f.store.TherapistRoom(ctx, "t1@example.com")
	require.NoError(t, err)
	assert.Equal(t, tok.RoomName, room)
}

func TestCreateOrRejoin_WithLockerSerializesCreates(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redisadapter.NewFromClient(client)
	locker := redisadapter.NewLocker(client, "sessiond:")
	chat := newFakeChat()
	dir := &fakeDirectory{members: map[string]domain.Participant{
		"t1@example.com": {Identity: "t1@example.com"},
		"c7@example.com": {Identity: "c7@example.com"},
	}}

	names := 0
	var mu sync.Mutex
	coord := session.New(store, chat, dir, fakeTokens{}, newFakeProvider(), &fakeQueue{},
		session.WithLogger(logging.NewNop()),
		session.WithLocker(locker),
		session.WithRoomNameFunc(func() string {
			mu.Lock()
			defer mu.Unlock()
			names++
			return fmt.Sprintf("room-%d", names)
		}),
	)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]domain.SessionToken, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := coord.CreateOrRejoin(ctx, "t1@example.com", "c7@example.com")
			assert.NoError(t, err)
			results[i] = tok
		}(i)
	}
	wg.Wait()

	for _, tok := range results[1:] {
		assert.Equal(t, results[0].RoomName, tok.RoomName, "all racers must observe the same room")
	}
	assert.Equal(t, 1, chat.createCalls)
}
