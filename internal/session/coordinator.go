/*
Package session implements the session lifecycle coordinator.

A session spans three independently-failing resources: the Redis session state,
the persistent chat room, and the provider-side media room. No transaction
covers all three, so every flow here is an ordered sequence of idempotent steps
whose partial results are valid, inspectable intermediate states. Ordering is
the safety mechanism: the chat room is created before its index entry is
written, and store keys are deleted before the provider call is fired, so a
crash at any point leaves state a retried call can recover from.
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/communet/sessiond/internal/observability"
	"github.com/communet/sessiond/pkg/domain"
	"github.com/communet/sessiond/pkg/ports"
	"github.com/google/uuid"
)

const lockTTL = 10 * time.Second

// WebhookVerifier verifies and decodes inbound provider events.
type WebhookVerifier interface {
	Verify(body []byte, authHeader string) (domain.WebhookEvent, error)
}

// Coordinator orchestrates session creation, idempotent re-entry, teardown and
// the chat bridging triggered by entry and exit.
type Coordinator struct {
	store     ports.SessionStore
	chat      ports.ChatBridge
	directory ports.IdentityDirectory
	tokens    ports.TokenIssuer
	provider  ports.RoomProvider
	queue     ports.DeletionQueue
	verifier  WebhookVerifier

	locker  ports.DistributedLocker
	logger  *slog.Logger
	metrics *observability.Metrics

	providerTimeout time.Duration
	now             func() time.Time
	newRoomName     func() string
}

type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithMetrics wires the lifecycle counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLocker serializes concurrent creates per therapist identity. Without a
// locker two racing creates can both miss the existence check; last write
// observed wins, which the store layout tolerates.
func WithLocker(l ports.DistributedLocker) Option {
	return func(c *Coordinator) {
		c.locker = l
	}
}

// WithWebhookVerifier wires provider event verification.
func WithWebhookVerifier(v WebhookVerifier) Option {
	return func(c *Coordinator) {
		c.verifier = v
	}
}

// WithProviderTimeout bounds the async room-deletion call.
func WithProviderTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.providerTimeout = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithRoomNameFunc overrides room name generation.
func WithRoomNameFunc(f func() string) Option {
	return func(c *Coordinator) {
		c.newRoomName = f
	}
}

// New creates a coordinator over the given collaborators.
func New(
	store ports.SessionStore,
	chat ports.ChatBridge,
	directory ports.IdentityDirectory,
	tokens ports.TokenIssuer,
	provider ports.RoomProvider,
	queue ports.DeletionQueue,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		store:           store,
		chat:            chat,
		directory:       directory,
		tokens:          tokens,
		provider:        provider,
		queue:           queue,
		logger:          slog.Default(),
		metrics:         observability.NewNop(),
		providerTimeout: 5 * time.Second,
		now:             time.Now,
		newRoomName:     uuid.NewString,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateOrRejoin starts a session between the therapist and the client, or
// re-enters the therapist's existing session. Re-entry returns the same room
// and chat room; it never creates a duplicate of either.
func (c *Coordinator) CreateOrRejoin(ctx context.Context, therapistIdentity, clientIdentity string) (domain.SessionToken, error) {
	var zero domain.SessionToken

	therapist, err := c.directory.Resolve(ctx, therapistIdentity)
	if err != nil {
		return zero, fmt.Errorf("resolving therapist %s: %w", therapistIdentity, err)
	}

	if c.locker != nil {
		unlock, err := c.locker.Lock(ctx, "therapist:"+therapistIdentity, lockTTL)
		if err != nil {
			// Degrade to the unlocked race rather than failing the call.
			c.logger.Warn("could not acquire create lock", "therapist", therapistIdentity, "err", err)
		} else {
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					c.logger.Warn("failed to release create lock", "therapist", therapistIdentity, "err", err)
				}
			}()
		}
	}

	// Idempotent re-entry: an existing room short-circuits creation entirely.
	roomName, err := c.store.TherapistRoom(ctx, therapistIdentity)
	switch {
	case err == nil:
		return c.rejoin(ctx, therapist, roomName)
	case errors.Is(err, domain.ErrNoSession):
		// Fall through to creation.
	default:
		return zero, err
	}

	return c.create(ctx, therapist, clientIdentity)
}

func (c *Coordinator) rejoin(ctx context.Context, therapist domain.Participant, roomName string) (domain.SessionToken, error) {
	var zero domain.SessionToken

	chatRoomID, err := c.store.ChatRoom(ctx, roomName)
	if err != nil {
		if errors.Is(err, domain.ErrNoSession) {
			// The ephemeral room outlived its chat companion: a partial-write
			// fault, not a missing session.
			return zero, fmt.Errorf("room %s: %w", roomName, domain.ErrChatRoomIndexMissing)
		}
		return zero, err
	}

	token, err := c.tokens.Issue(therapist.Identity, therapist.DisplayName(), roomName)
	if err != nil {
		return zero, fmt.Errorf("issuing token: %w", err)
	}

	c.metrics.SessionsRejoined.Inc()
	c.logger.Info("therapist rejoined session", "room", roomName, "therapist", therapist.Identity)

	return domain.SessionToken{Token: token, ChatRoomID: chatRoomID, RoomName: roomName}, nil
}

func (c *Coordinator) create(ctx context.Context, therapist domain.Participant, clientIdentity string) (domain.SessionToken, error) {
	var zero domain.SessionToken

	client, err := c.directory.Resolve(ctx, clientIdentity)
	if err != nil {
		return zero, fmt.Errorf("resolving client %s: %w", clientIdentity, err)
	}

	roomName := c.newRoomName()
	now := c.now()

	rec := domain.SessionRecord{
		RoomName:  roomName,
		Therapist: therapist.Identity,
		Client:    client.Identity,
		CreatedAt: now,
	}
	if err := c.store.PutSession(ctx, rec); err != nil {
		return zero, err
	}

	// The chat room must exist before anything points at it. If creation fails
	// here, no index entry was written and the session hash is inert.
	chatRoomID, err := c.chat.CreateOrGetRoom(ctx, roomName, []string{therapist.Identity, client.Identity})
	if err != nil {
		return zero, fmt.Errorf("creating chat room for %s: %w", roomName, err)
	}
	if err := c.store.SetChatRoom(ctx, roomName, chatRoomID); err != nil {
		return zero, err
	}

	if err := c.store.SetRoomIndices(ctx, roomName, therapist.Identity, client.Identity); err != nil {
		return zero, err
	}

	if err := c.chat.PostSystemMessage(ctx, c.enterMessage(roomName, chatRoomID, therapist)); err != nil {
		return zero, err
	}

	token, err := c.tokens.Issue(therapist.Identity, therapist.DisplayName(), roomName)
	if err != nil {
		return zero, fmt.Errorf("issuing token: %w", err)
	}

	c.metrics.SessionsCreated.Inc()
	c.logger.Info("session created",
		"room", roomName, "therapist", therapist.Identity, "client", client.Identity, "chat_room", chatRoomID)

	return domain.SessionToken{Token: token, ChatRoomID: chatRoomID, RoomName: roomName}, nil
}

// JoinAsClient resolves the client's active session and returns a token for it.
// Every call posts another ENTER message: presence ping, not deduplicated.
func (c *Coordinator) JoinAsClient(ctx context.Context, clientIdentity string) (domain.SessionToken, error) {
	var zero domain.SessionToken

	client, err := c.directory.Resolve(ctx, clientIdentity)
	if err != nil {
		return zero, fmt.Errorf("resolving client %s: %w", clientIdentity, err)
	}

	roomName, err := c.store.ClientRoom(ctx, clientIdentity)
	if err != nil {
		return zero, err
	}

	chatRoomID, err := c.store.ChatRoom(ctx, roomName)
	if err != nil {
		if errors.Is(err, domain.ErrNoSession) {
			return zero, fmt.Errorf("room %s: %w", roomName, domain.ErrChatRoomIndexMissing)
		}
		return zero, err
	}

	if err := c.chat.PostSystemMessage(ctx, c.enterMessage(roomName, chatRoomID, client)); err != nil {
		return zero, err
	}

	token, err := c.tokens.Issue(client.Identity, client.DisplayName(), roomName)
	if err != nil {
		return zero, fmt.Errorf("issuing token: %w", err)
	}

	c.metrics.ClientJoins.Inc()
	c.logger.Info("client joined session", "room", roomName, "client", client.Identity)

	return domain.SessionToken{Token: token, ChatRoomID: chatRoomID, RoomName: roomName}, nil
}

// Teardown ends the therapist's session: store cleanup first, chat room
// reconciliation second, provider deletion fired asynchronously last.
//
// Returns domain.ErrNoSession if the therapist has no active session, which a
// repeated teardown after partial failure will hit; callers treat it as
// already-torn-down. Store and chat errors are not swallowed. The provider
// outcome never reaches the caller; failures land in the retry queue.
func (c *Coordinator) Teardown(ctx context.Context, therapistIdentity string) error {
	roomName, err := c.store.TherapistRoom(ctx, therapistIdentity)
	if err != nil {
		return err
	}

	clientIdentity, err := c.store.SessionClient(ctx, roomName)
	if err != nil {
		if errors.Is(err, domain.ErrNoSession) {
			// Index points at a room whose hash is gone: earlier partial write.
			return fmt.Errorf("room %s: %w", roomName, domain.ErrSessionRecordIncomplete)
		}
		return err
	}

	// Store cleanup happens before anything else so a retried teardown fails
	// fast as "no session" instead of repeating side effects.
	if err := c.store.DeleteSession(ctx, roomName, therapistIdentity, clientIdentity); err != nil {
		return err
	}

	if err := c.reconcileChatRoom(ctx, therapistIdentity, roomName); err != nil {
		return err
	}

	c.deleteProviderRoom(roomName)

	c.metrics.Teardowns.Inc()
	c.logger.Info("session torn down", "room", roomName, "therapist", therapistIdentity)
	return nil
}

// reconcileChatRoom closes the companion chat room: LEAVE message, soft
// delete, buffer flush, index removal. A missing index means the chat side was
// already reconciled and the whole step is a no-op.
func (c *Coordinator) reconcileChatRoom(ctx context.Context, therapistIdentity, roomName string) error {
	chatRoomID, err := c.store.ChatRoom(ctx, roomName)
	if err != nil {
		if errors.Is(err, domain.ErrNoSession) {
			return nil
		}
		return err
	}

	therapist, err := c.directory.Resolve(ctx, therapistIdentity)
	if err != nil {
		return fmt.Errorf("resolving therapist %s: %w", therapistIdentity, err)
	}

	leave := domain.SystemMessage{
		SessionID: roomName,
		RoomID:    chatRoomID,
		Sender:    therapist.Identity,
		Kind:      domain.MessageLeave,
		Content:   "session ended",
		SentAt:    c.now(),
	}
	if err := c.chat.PostSystemMessage(ctx, leave); err != nil {
		return err
	}

	if err := c.chat.SoftDeleteRoom(ctx, chatRoomID); err != nil {
		return err
	}

	if err := c.chat.FlushBufferedMessages(ctx, roomName); err != nil {
		return err
	}

	return c.store.DeleteChatRoom(ctx, roomName)
}

// deleteProviderRoom fires the provider call off the request path. The outcome
// is observed only here and by the retry queue.
func (c *Coordinator) deleteProviderRoom(roomName string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.providerTimeout)
		defer cancel()

		if err := c.provider.DeleteRoom(ctx, roomName); err != nil {
			c.metrics.RoomDeletions.WithLabelValues("enqueued").Inc()
			c.logger.Warn("room deletion failed, queued for retry", "room", roomName, "err", err)
			c.queue.Add(roomName, 1)
			return
		}

		c.metrics.RoomDeletions.WithLabelValues("ok").Inc()
		c.logger.Info("provider room deleted", "room", roomName)
	}()
}

// HandleWebhook verifies and logs a provider event. Events never feed back
// into session state; failures are logged and the delivery dropped.
func (c *Coordinator) HandleWebhook(ctx context.Context, body []byte, authHeader string) {
	if c.verifier == nil {
		c.logger.Warn("webhook received but no verifier configured")
		return
	}

	event, err := c.verifier.Verify(body, authHeader)
	if err != nil {
		c.metrics.WebhookEvents.WithLabelValues("rejected").Inc()
		c.logger.Error("dropping webhook event", "err", err)
		return
	}

	c.metrics.WebhookEvents.WithLabelValues("ok").Inc()
	c.logger.Info("provider webhook",
		"event", event.Event, "id", event.ID, "room", event.Room.Name, "participant", event.Participant.Identity)
}

func (c *Coordinator) enterMessage(roomName string, chatRoomID int64, p domain.Participant) domain.SystemMessage {
	return domain.SystemMessage{
		SessionID: roomName,
		RoomID:    chatRoomID,
		Sender:    p.Identity,
		Kind:      domain.MessageEnter,
		Content:   fmt.Sprintf("%s joined the session", p.DisplayName()),
		SentAt:    c.now(),
	}
}
