package room

// Event is one outbound message. Type is the wire event name.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"data,omitempty"`
}

const (
	EventRoomCreated        = "roomCreated"
	EventRoomJoined         = "roomJoined"
	EventGameUpdate         = "gameUpdate"
	EventPlayerDisconnected = "playerDisconnected"
	EventPlayerReconnected  = "playerReconnected"
	EventMatchFound         = "matchFound"
	EventSpectatorJoined    = "spectatorJoined"
	EventSpectatorLeft      = "spectatorLeft"
	EventDrawOffered        = "drawOffered"
	EventDrawDeclined       = "drawDeclined"
	EventChatMessage        = "chatMessage"
	EventPossibleMoves      = "possibleMoves"
	EventRematchRequested   = "rematchRequested"
	EventRematchReady       = "rematchReady"
	EventError              = "error"
)

type RoomPayload struct {
	Room     string   `json:"room"`
	Role     Role     `json:"role"`
	Snapshot Snapshot `json:"snapshot"`
}

type GameUpdatePayload struct {
	Snapshot Snapshot `json:"snapshot"`
	LastMove *Move    `json:"lastMove,omitempty"`
	Notation string   `json:"notation,omitempty"`
}

type DisconnectPayload struct {
	Seat           Role    `json:"seat"`
	TimeoutSeconds float64 `json:"timeoutSeconds"`
}

type ReconnectPayload struct {
	Seat Role `json:"seat"`
}

type MatchFoundPayload struct {
	Room string `json:"room"`
	Role Role   `json:"role"`
}

type SpectatorPayload struct {
	Count int `json:"count"`
}

type DrawOfferPayload struct {
	From Role `json:"from"`
}

type ChatPayload struct {
	From string `json:"from"`
	Role Role   `json:"role"`
	Text string `json:"text"`
}

type PossibleMovesPayload struct {
	From    string   `json:"from"`
	Targets []string `json:"targets"`
}

type RematchPayload struct {
	Room string `json:"room"`
	Role Role   `json:"role"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEvent builds the structured error event for err.
func ErrorEvent(err error, message string) Event {
	if message == "" && err != nil {
		message = err.Error()
	}
	return Event{Type: EventError, Payload: ErrorPayload{Code: Code(err), Message: message}}
}

type delivery struct {
	conn ConnID
	ev   Event
}
