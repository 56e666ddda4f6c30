package protocol

//input structs coming in from the client.

type CreateRoom struct {
	Username string `json:"username"`
}

type JoinRoom struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
	IsRejoin bool   `json:"isRejoin,omitempty"` // reconnect after a transport drop
}

type Slice struct {
	FruitID  string `json:"fruitId"`
	RoomCode string `json:"roomCode"`
}
