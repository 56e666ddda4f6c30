package room

import (
	"crypto/rand"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"
)

const DefaultRoundDuration = 2 * time.Minute

// RoomInfo is returned by the API for the server list.
type RoomInfo struct {
	Code    string    `json:"code"`
	Owner   string    `json:"owner"`
	Players int       `json:"players"`
	Started bool      `json:"started"`
	EndsAt  time.Time `json:"endsAt,omitzero"`
}

// RoundResult is handed to the round-end callback.
type RoundResult struct {
	Round       uint64 // per-room sequence, starts at 1
	Leaderboard []Standing
	Winner      *Standing // nil when the room emptied before the end
	RoomDeleted bool
}

// Departure describes what LeaveRoom changed.
type Departure struct {
	Code        string
	Player      PlayerInfo
	Players     []PlayerInfo // remaining, join order
	RoomDeleted bool
	NewOwner    string // id of the promoted player, if any
}

// Manager is the sole authority over rooms, membership, ownership and round
// timing. Every operation runs under one lock so the registry and the timer
// side table are never observed half-updated.
//
// Round starts and ends, together with their callbacks, are additionally
// serialized by lifecycle: a round's end handler always finishes before the
// next round of any room can start.
type Manager struct {
	lifecycle sync.Mutex

	mu      sync.RWMutex
	rooms   map[string]*Room
	members map[string]string      // connection id -> room code
	timers  map[string]*time.Timer // room code -> round-end timer
	seq     uint64

	roundDuration time.Duration
	log           *slog.Logger

	// OnRoundEnd is called when a round timer fires, outside mu but inside
	// the lifecycle lock, so it must not start rounds itself. Set it before
	// the first StartRound.
	OnRoundEnd func(code string, res RoundResult)
}

func NewManager(roundDuration time.Duration, logger *slog.Logger) *Manager {
	if roundDuration <= 0 {
		roundDuration = DefaultRoundDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		rooms:         make(map[string]*Room),
		members:       make(map[string]string),
		timers:        make(map[string]*time.Timer),
		roundDuration: roundDuration,
		log:           logger.With(slog.String("component", "rooms")),
	}
}

func (m *Manager) RoundDuration() time.Duration { return m.roundDuration }

const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CreateRoom generates a unique 6-char code, creates the room with the caller
// as its owner and returns the code. A caller already in a room leaves it
// first.
func (m *Manager) CreateRoom(connID, name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.leaveLocked(connID)

	for {
		code := generateCode(6)
		if _, exists := m.rooms[code]; exists {
			continue
		}
		r := newRoom(code)
		m.addPlayerLocked(r, connID, name, true)
		m.rooms[code] = r
		m.log.Info("room created", slog.String("room", code), slog.String("player", connID))
		return code
	}
}

// Move is the outcome of MoveToRoom.
type Move struct {
	Players []PlayerInfo // join order
	Joined  bool         // false when the caller was already a member
	Left    *Departure   // the room left on the way, if any
}

// JoinRoom adds the caller as a non-owner player and returns the player list
// in join order. Joining the room the caller is already in changes nothing.
func (m *Manager) JoinRoom(connID, code, name string) ([]PlayerInfo, error) {
	mv, err := m.MoveToRoom(connID, code, name)
	return mv.Players, err
}

// MoveToRoom is JoinRoom that also reports the room the caller left on the
// way. Validation, leaving and joining happen in one step: a failed join
// leaves the caller where it was.
func (m *Manager) MoveToRoom(connID, code, name string) (Move, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[code]
	if !ok {
		return Move{}, ErrRoomNotFound
	}
	if m.members[connID] == code {
		return Move{Players: r.playerInfos()}, nil
	}
	if r.Started {
		return Move{}, ErrRoundAlreadyStarted
	}

	mv := Move{Joined: true}
	if d, left := m.leaveLocked(connID); left {
		mv.Left = &d
	}
	m.addPlayerLocked(r, connID, name, false)
	mv.Players = r.playerInfos()
	m.log.Info("player joined", slog.String("room", code), slog.String("player", connID))
	return mv, nil
}

// StartRound resets scores, arms the round timer and returns the end time.
// Only the owner may start, and only a room that is not already running.
func (m *Manager) StartRound(connID, code string) (time.Time, error) {
	return m.StartRoundWith(connID, code, nil)
}

// StartRoundWith is StartRound with a hook that runs after the round is
// recorded and before its end can be handled. onStart is not called when
// the start is rejected.
func (m *Manager) StartRoundWith(connID, code string, onStart func(round uint64, endsAt time.Time)) (time.Time, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	round, endsAt, err := m.startRound(connID, code)
	if err != nil {
		return time.Time{}, err
	}
	if onStart != nil {
		onStart(round, endsAt)
	}
	return endsAt, nil
}

func (m *Manager) startRound(connID, code string) (uint64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[code]
	if !ok {
		return 0, time.Time{}, ErrRoomNotFound
	}
	p, ok := r.players[connID]
	if !ok || !p.IsOwner {
		return 0, time.Time{}, ErrNotOwner
	}
	if r.Started {
		return 0, time.Time{}, ErrRoundAlreadyStarted
	}

	for _, p := range r.players {
		p.Score = 0
	}
	r.round++
	r.StartedAt = time.Now()
	r.EndsAt = r.StartedAt.Add(m.roundDuration)
	r.Started = true

	round := r.round
	if old, ok := m.timers[code]; ok {
		old.Stop()
	}
	m.timers[code] = time.AfterFunc(m.roundDuration, func() { m.endRound(code, round) })

	m.log.Info("round started",
		slog.String("room", code),
		slog.Uint64("round", round),
		slog.Int("players", len(r.players)),
		slog.Time("endsAt", r.EndsAt),
	)
	return round, r.EndsAt, nil
}

func (m *Manager) endRound(code string, round uint64) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	r, ok := m.rooms[code]
	if !ok || r.round != round || !r.Started {
		m.mu.Unlock()
		return
	}
	delete(m.timers, code)

	r.Started = false
	res := RoundResult{Round: round, Leaderboard: r.leaderboard()}
	if len(res.Leaderboard) > 0 {
		w := res.Leaderboard[0]
		res.Winner = &w
	}
	if len(r.players) == 0 {
		delete(m.rooms, code)
		res.RoomDeleted = true
	}
	m.mu.Unlock()

	m.log.Info("round ended",
		slog.String("room", code),
		slog.Uint64("round", round),
		slog.Bool("roomDeleted", res.RoomDeleted),
	)
	if m.OnRoundEnd != nil {
		m.OnRoundEnd(code, res)
	}
}

// LeaveRoom removes the caller from its room. It reports false when the
// caller was not in any room.
func (m *Manager) LeaveRoom(connID string) (Departure, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(connID)
}

func (m *Manager) leaveLocked(connID string) (Departure, bool) {
	code, ok := m.members[connID]
	if !ok {
		return Departure{}, false
	}
	delete(m.members, connID)

	r, ok := m.rooms[code]
	if !ok {
		return Departure{}, false
	}
	p, ok := r.players[connID]
	if !ok {
		return Departure{}, false
	}
	delete(r.players, connID)

	d := Departure{
		Code:   code,
		Player: PlayerInfo{ID: p.ID, Username: p.Name, IsOwner: p.IsOwner},
	}

	if len(r.players) == 0 && !r.Started {
		delete(m.rooms, code)
		d.RoomDeleted = true
		m.log.Info("room deleted", slog.String("room", code))
	} else if p.IsOwner && len(r.players) > 0 {
		next := r.ordered()[0]
		next.IsOwner = true
		d.NewOwner = next.ID
		m.log.Info("owner transferred",
			slog.String("room", code),
			slog.String("from", connID),
			slog.String("to", next.ID),
		)
	}
	d.Players = r.playerInfos()

	m.log.Info("player left", slog.String("room", code), slog.String("player", connID))
	return d, true
}

// RecordScore adds delta to the player's score and returns the leaderboard.
func (m *Manager) RecordScore(code, connID string, delta int) ([]Standing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	p, ok := r.players[connID]
	if !ok {
		return nil, ErrNotInRoom
	}
	p.Score += delta
	return r.leaderboard(), nil
}

// RoomOf returns the code of the room the connection belongs to.
func (m *Manager) RoomOf(connID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	code, ok := m.members[connID]
	return code, ok
}

func (m *Manager) IsMember(connID, code string) bool {
	c, ok := m.RoomOf(connID)
	return ok && c == code
}

// Players returns the room's players in join order.
func (m *Manager) Players(code string) ([]PlayerInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[code]
	if !ok {
		return nil, false
	}
	return r.playerInfos(), true
}

func (m *Manager) Leaderboard(code string) ([]Standing, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[code]
	if !ok {
		return nil, false
	}
	return r.leaderboard(), true
}

// Room returns a summary of one room.
func (m *Manager) Room(code string) (RoomInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[code]
	if !ok {
		return RoomInfo{}, false
	}
	return infoOf(r), true
}

// ListRooms returns all active rooms with code and player count.
func (m *Manager) ListRooms() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, infoOf(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Close stops all pending round timers. Rounds in progress never end.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, t := range m.timers {
		t.Stop()
		delete(m.timers, code)
	}
}

func (m *Manager) addPlayerLocked(r *Room, connID, name string, owner bool) {
	m.seq++
	r.players[connID] = &Player{
		ID:      connID,
		Name:    name,
		IsOwner: owner,
		joinSeq: m.seq,
	}
	m.members[connID] = r.Code
}

func infoOf(r *Room) RoomInfo {
	info := RoomInfo{Code: r.Code, Players: len(r.players), Started: r.Started}
	if o := r.owner(); o != nil {
		info.Owner = o.Name
	}
	if r.Started {
		info.EndsAt = r.EndsAt
	}
	return info
}

func generateCode(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(codeChars)))
	for i := range b {
		idx, _ := rand.Int(rand.Reader, max)
		b[i] = codeChars[idx.Int64()]
	}
	return string(b)
}
