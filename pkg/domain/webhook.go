package domain

// WebhookEvent is a verified room-provider event. Events are decoded for
// observability only; they never feed back into coordinator state.
type WebhookEvent struct {
	// Event is the provider event name, e.g. "room_started" or "room_finished".
	Event string `mapstructure:"event"`

	// ID is the provider-assigned event id, used for log correlation.
	ID string `mapstructure:"id"`

	Room        WebhookRoom        `mapstructure:"room"`
	Participant WebhookParticipant `mapstructure:"participant"`

	// CreatedAt is the provider-side unix timestamp of the event.
	CreatedAt int64 `mapstructure:"createdAt"`
}

// WebhookRoom identifies the room an event refers to.
type WebhookRoom struct {
	Name string `mapstructure:"name"`
	SID  string `mapstructure:"sid"`
}

// WebhookParticipant identifies the participant an event refers to, if any.
type WebhookParticipant struct {
	Identity string `mapstructure:"identity"`
}
