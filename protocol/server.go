package protocol

type Welcome struct {
	SessionID string `json:"sessionId"`
	TickHz    int    `json:"tickHz"`
}

// Ack answers one request. Only the fields relevant to the request are set.
type Ack struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	RoomCode string   `json:"roomCode,omitempty"`
	Players  []Player `json:"players,omitempty"`
	EndTime  int64    `json:"endTime,omitempty"` // unix millis
}

type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsOwner  bool   `json:"isOwner"`
}

type Players struct {
	Players []Player `json:"players"`
}

type GameStarted struct {
	EndTime int64 `json:"endTime"`
}

type LeaderboardEntry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
	IsOwner  bool   `json:"isOwner"`
}

type Leaderboard struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

type GameEnd struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Winner      *LeaderboardEntry  `json:"winner"`
}

type Score struct {
	Score    int    `json:"score"`
	RoomCode string `json:"roomCode"`
}

type MatrixUpdate struct {
	RoomCode string       `json:"roomCode"`
	Matrix   [][]string   `json:"matrix"` // "" = empty cell, else fruit id
	Fruits   []FruitState `json:"fruits"`
}

type FruitState struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Symbol string  `json:"symbol"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Speed  float64 `json:"speed"`
	Score  int     `json:"score"`
	Radius float64 `json:"radius"`
}
