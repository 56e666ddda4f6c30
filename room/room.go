package room

import (
	"sort"
	"time"
)

type Player struct {
	ID      string // connection identity
	Name    string
	IsOwner bool
	Score   int
	joinSeq uint64
}

// Room is one session. Round timers live in the Manager, not here.
type Room struct {
	Code      string
	Started   bool
	StartedAt time.Time
	EndsAt    time.Time
	round     uint64 // bumped on every start
	players   map[string]*Player
}

func newRoom(code string) *Room {
	return &Room{
		Code:    code,
		players: make(map[string]*Player),
	}
}

// PlayerInfo is the lobby view of a player.
type PlayerInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsOwner  bool   `json:"isOwner"`
}

// Standing is one leaderboard row.
type Standing struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
	IsOwner  bool   `json:"isOwner"`
}

// ordered returns the players by join order.
func (r *Room) ordered() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].joinSeq < out[j].joinSeq })
	return out
}

func (r *Room) playerInfos() []PlayerInfo {
	ps := r.ordered()
	out := make([]PlayerInfo, 0, len(ps))
	for _, p := range ps {
		out = append(out, PlayerInfo{ID: p.ID, Username: p.Name, IsOwner: p.IsOwner})
	}
	return out
}

// leaderboard sorts by score descending; equal scores keep join order.
func (r *Room) leaderboard() []Standing {
	ps := r.ordered()
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Score > ps[j].Score })
	out := make([]Standing, 0, len(ps))
	for _, p := range ps {
		out = append(out, Standing{Username: p.Name, Score: p.Score, IsOwner: p.IsOwner})
	}
	return out
}

func (r *Room) owner() *Player {
	for _, p := range r.players {
		if p.IsOwner {
			return p
		}
	}
	return nil
}
