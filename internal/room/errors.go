package room

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomTaken          = errors.New("room already taken")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrIllegalMove        = errors.New("illegal move")
	ErrNotAPlayer         = errors.New("not a player in this room")
	ErrAlreadyQueued      = errors.New("already queued")
	ErrNotQueued          = errors.New("not queued")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrAdvisorUnavailable = errors.New("advisor unavailable")

	ErrNotAttached   = errors.New("connection is not attached to a room")
	ErrGameNotActive = errors.New("game is not active")
	ErrGameNotOver   = errors.New("game is still in progress")
	ErrNoDrawOffer   = errors.New("no pending draw offer")
	ErrInvalidArgs   = errors.New("invalid arguments")
)

// ErrRoomFull is part of the wire error taxonomy. JoinRoom never returns it:
// a third player joining a full room becomes a spectator.
var ErrRoomFull = errors.New("room is full")

// Code maps an error onto a stable wire code. Unknown errors map to "internal".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrRoomTaken):
		return "room_taken"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, ErrIllegalMove):
		return "illegal_move"
	case errors.Is(err, ErrNotAPlayer):
		return "not_a_player"
	case errors.Is(err, ErrAlreadyQueued):
		return "already_queued"
	case errors.Is(err, ErrNotQueued):
		return "not_queued"
	case errors.Is(err, ErrNotAttached):
		return "not_attached"
	case errors.Is(err, ErrGameNotActive):
		return "game_not_active"
	case errors.Is(err, ErrGameNotOver):
		return "game_not_over"
	case errors.Is(err, ErrNoDrawOffer):
		return "no_draw_offer"
	case errors.Is(err, ErrInvalidArgs):
		return "invalid_args"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	case errors.Is(err, ErrAdvisorUnavailable):
		return "advisor_unavailable"
	default:
		return "internal"
	}
}
