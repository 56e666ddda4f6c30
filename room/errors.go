package room

// Kind classifies a command failure for the client.
type Kind string

const (
	KindRoomNotFound        Kind = "RoomNotFound"
	KindRoundAlreadyStarted Kind = "RoundAlreadyStarted"
	KindRoundNotStarted     Kind = "RoundNotStarted"
	KindNotOwner            Kind = "NotOwner"
	KindRoomMismatch        Kind = "RoomMismatch"
	KindNotInRoom           Kind = "NotInRoom"
)

// Error is a recoverable command failure. Compare with errors.Is against the
// sentinels below.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

var (
	ErrRoomNotFound        = &Error{Kind: KindRoomNotFound, Msg: "Room not found"}
	ErrRoundAlreadyStarted = &Error{Kind: KindRoundAlreadyStarted, Msg: "Game already started"}
	ErrRoundNotStarted     = &Error{Kind: KindRoundNotStarted, Msg: "Game not started"}
	ErrNotOwner            = &Error{Kind: KindNotOwner, Msg: "Only room owner can start the game"}
	ErrRoomMismatch        = &Error{Kind: KindRoomMismatch, Msg: "Room mismatch"}
	ErrNotInRoom           = &Error{Kind: KindNotInRoom, Msg: "Not in a room"}
)
