package protocol

import (
	"encoding/json"
)

// client -> server
const (
	MsgCreateRoom = "create_room"
	MsgJoinRoom   = "join_room"
	MsgStartGame  = "start_game"
	MsgSlice      = "slice"
)

// server -> client
const (
	MsgWelcome      = "welcome"
	MsgAck          = "ack"
	MsgPlayerJoined = "player_joined"
	MsgPlayerLeft   = "player_left"
	MsgGameStarted  = "game_started"
	MsgGameEnd      = "game:end"
	MsgLeaderboard  = "leaderboard:update"
	MsgScore        = "score:update"
	MsgMatrix       = "matrix:update"
)

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Envelope wraps every frame. ID is set by the client on requests that
// expect an ack and echoed back on the ack.
type Envelope struct {
	T  string          `json:"t"`
	ID int64           `json:"id,omitempty"`
	P  json.RawMessage `json:"p,omitempty"` // raw payload bytes
}
