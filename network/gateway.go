package network

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fruitninja/events"
	"fruitninja/game"
	"fruitninja/protocol"
	"fruitninja/room"
)

const (
	DefaultGracePeriod = 5 * time.Second
	defaultUsername    = "Anonymous"
	maxUsername        = 32
)

type Options struct {
	GracePeriod    time.Duration
	AllowedOrigins []string
}

type session struct {
	id    string
	codec string
	conn  Conn
}

// Gateway translates client commands into room and engine calls and routes
// bus events to the connections of the room they belong to.
type Gateway struct {
	rooms  *room.Manager
	engine *game.Engine
	bus    *events.Bus
	sub    *events.Subscription
	grace  time.Duration
	log    *slog.Logger

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session            // session id -> live connection
	groups   map[string]map[string]struct{} // room code -> session ids
	graces   map[string]*time.Timer         // session id -> pending removal
}

// NewGateway subscribes to the bus and installs itself as the manager's
// round-end handler. Call Run to start forwarding events.
func NewGateway(rooms *room.Manager, engine *game.Engine, bus *events.Bus, opts Options, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	g := &Gateway{
		rooms:    rooms,
		engine:   engine,
		bus:      bus,
		sub:      bus.Subscribe(events.DefaultBuffer),
		grace:    opts.GracePeriod,
		log:      logger.With(slog.String("component", "gateway")),
		upgrader: newUpgrader(opts.AllowedOrigins),
		sessions: make(map[string]*session),
		groups:   make(map[string]map[string]struct{}),
		graces:   make(map[string]*time.Timer),
	}
	rooms.OnRoundEnd = g.onRoundEnd
	return g
}

// Run forwards bus events until Close.
func (g *Gateway) Run() {
	for ev := range g.sub.C {
		switch e := ev.(type) {
		case events.Snapshot:
			g.broadcastSnapshot(e)
		case events.ScoreUpdate:
			g.broadcast(e.RoomCode, protocol.MsgScore, protocol.Score{Score: e.Score, RoomCode: e.RoomCode})
		}
	}
}

// Close stops event forwarding and cancels pending grace timers. Live
// connections are closed.
func (g *Gateway) Close() {
	g.sub.Close()
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, t := range g.graces {
		t.Stop()
		delete(g.graces, id)
	}
	for _, s := range g.sessions {
		_ = s.conn.Close()
	}
}

// Connect registers conn as the live connection for the session and sends
// the welcome. A previous connection for the same session is closed.
func (g *Gateway) Connect(sid, codec string, conn Conn) {
	s := &session{id: sid, codec: codec, conn: conn}

	g.mu.Lock()
	old := g.sessions[sid]
	g.sessions[sid] = s
	g.mu.Unlock()

	if old != nil && old.conn != conn {
		_ = old.conn.Close()
	}
	g.log.Info("client connected", slog.String("session", sid), slog.String("codec", codec))

	hz := 0
	if iv := g.engine.TickInterval(); iv > 0 {
		hz = int(time.Second / iv)
	}
	g.send(s, protocol.MsgWelcome, protocol.Welcome{SessionID: sid, TickHz: hz})
}

// Disconnect arms the grace timer for the session's room membership. A
// connection that was already replaced is ignored.
func (g *Gateway) Disconnect(sid string, conn Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sid]
	if !ok || s.conn != conn {
		return
	}
	delete(g.sessions, sid)

	code, inRoom := g.rooms.RoomOf(sid)
	if !inRoom {
		g.log.Info("client disconnected", slog.String("session", sid))
		return
	}
	g.armGraceLocked(sid)
	g.log.Info("client disconnected, grace armed",
		slog.String("session", sid),
		slog.String("room", code),
		slog.Duration("grace", g.grace),
	)
}

func (g *Gateway) armGraceLocked(sid string) {
	if t, ok := g.graces[sid]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(g.grace, func() {
		// Identity check and removal form one step under mu, so a rejoin
		// either cancels this timer first or finds the player gone.
		g.mu.Lock()
		if cur, ok := g.graces[sid]; !ok || cur != t {
			g.mu.Unlock()
			return
		}
		delete(g.graces, sid)
		d, left := g.rooms.LeaveRoom(sid)
		if left {
			g.partLocked(d.Code, sid)
		}
		g.mu.Unlock()

		g.log.Info("grace expired", slog.String("session", sid))
		if left {
			g.departed(d)
		}
	})
	g.graces[sid] = t
}

// cancelGraceLocked reports whether a pending timer was stopped.
func (g *Gateway) cancelGraceLocked(sid string) bool {
	t, ok := g.graces[sid]
	if !ok {
		return false
	}
	t.Stop()
	delete(g.graces, sid)
	return true
}

// Handle dispatches one inbound frame. Malformed frames are dropped.
func (g *Gateway) Handle(sid string, b []byte) {
	s := g.session(sid)
	if s == nil {
		return
	}
	env, err := protocol.DecodeEnvelope(b)
	if err != nil {
		g.log.Warn("dropping malformed frame", slog.String("session", sid), slog.String("error", err.Error()))
		return
	}

	switch env.T {
	case protocol.MsgCreateRoom:
		req, err := protocol.DecodePayload[protocol.CreateRoom](env)
		if err != nil {
			g.dropPayload(s, env, err)
			return
		}
		g.handleCreateRoom(s, env.ID, req)
	case protocol.MsgJoinRoom:
		req, err := protocol.DecodePayload[protocol.JoinRoom](env)
		if err != nil {
			g.dropPayload(s, env, err)
			return
		}
		g.handleJoinRoom(s, env.ID, req)
	case protocol.MsgStartGame:
		g.handleStartGame(s, env.ID)
	case protocol.MsgSlice:
		req, err := protocol.DecodePayload[protocol.Slice](env)
		if err != nil {
			g.dropPayload(s, env, err)
			return
		}
		g.handleSlice(s, env.ID, req)
	default:
		g.log.Debug("unknown message type", slog.String("session", sid), slog.String("type", env.T))
	}
}

func (g *Gateway) handleCreateRoom(s *session, id int64, req protocol.CreateRoom) {
	g.mu.Lock()
	g.cancelGraceLocked(s.id)
	d, left := g.rooms.LeaveRoom(s.id)
	if left {
		g.partLocked(d.Code, s.id)
	}
	code := g.rooms.CreateRoom(s.id, cleanName(req.Username))
	g.joinLocked(code, s.id)
	g.mu.Unlock()

	if left {
		g.departed(d)
	}
	g.ack(s, id, protocol.Ack{Success: true, RoomCode: code})
}

func (g *Gateway) handleJoinRoom(s *session, id int64, req protocol.JoinRoom) {
	code := strings.ToUpper(strings.TrimSpace(req.RoomCode))

	// Membership, the pending grace timer and the broadcast group change
	// together, so a grace expiry cannot slip in between.
	g.mu.Lock()
	mv, err := g.rooms.MoveToRoom(s.id, code, cleanName(req.Username))
	if err == nil {
		cancelled := g.cancelGraceLocked(s.id)
		if mv.Left != nil {
			g.partLocked(mv.Left.Code, s.id)
		}
		g.joinLocked(code, s.id)
		if !mv.Joined && (req.IsRejoin || cancelled) {
			g.log.Info("player rejoined",
				slog.String("room", code),
				slog.String("session", s.id),
				slog.Bool("graceCancelled", cancelled),
			)
		}
	}
	g.mu.Unlock()

	if err != nil {
		g.fail(s, id, err)
		return
	}
	if mv.Left != nil {
		g.departed(*mv.Left)
	}
	g.ack(s, id, protocol.Ack{Success: true, RoomCode: code, Players: toPlayers(mv.Players)})
	// An identity that was already a member changes nothing for the others.
	if mv.Joined {
		g.broadcast(code, protocol.MsgPlayerJoined, protocol.Players{Players: toPlayers(mv.Players)})
	}
}

func (g *Gateway) handleStartGame(s *session, id int64) {
	code, ok := g.rooms.RoomOf(s.id)
	if !ok {
		g.fail(s, id, room.ErrNotInRoom)
		return
	}
	_, err := g.rooms.StartRoundWith(s.id, code, func(round uint64, endsAt time.Time) {
		// Runs before this round's end can be handled. Any simulation
		// still registered for the room belongs to an earlier round.
		g.engine.Stop(code)
		g.engine.Start(code)

		end := endsAt.UnixMilli()
		g.log.Info("game started", slog.String("room", code), slog.Uint64("round", round))
		g.ack(s, id, protocol.Ack{Success: true, RoomCode: code, EndTime: end})
		g.broadcast(code, protocol.MsgGameStarted, protocol.GameStarted{EndTime: end})
	})
	if err != nil {
		g.fail(s, id, err)
	}
}

func (g *Gateway) handleSlice(s *session, id int64, req protocol.Slice) {
	info, ok := g.rooms.Room(req.RoomCode)
	if !ok {
		g.fail(s, id, room.ErrRoomNotFound)
		return
	}
	if !info.Started {
		g.fail(s, id, room.ErrRoundNotStarted)
		return
	}
	if !g.rooms.IsMember(s.id, req.RoomCode) {
		g.fail(s, id, room.ErrRoomMismatch)
		return
	}

	score := g.engine.SliceFruit(req.RoomCode, req.FruitID)
	if score > 0 {
		board, err := g.rooms.RecordScore(req.RoomCode, s.id, score)
		if err != nil {
			g.fail(s, id, err)
			return
		}
		g.bus.PublishScore(events.ScoreUpdate{RoomCode: req.RoomCode, PlayerID: s.id, Score: score})
		g.broadcast(req.RoomCode, protocol.MsgLeaderboard, protocol.Leaderboard{Leaderboard: toEntries(board)})
	}
	g.ack(s, id, protocol.Ack{Success: true, RoomCode: req.RoomCode})
}

// departed stops a deleted room's simulation or tells whoever remains.
func (g *Gateway) departed(d room.Departure) {
	if d.RoomDeleted {
		g.engine.Stop(d.Code)
		g.dropGroup(d.Code)
		return
	}
	g.broadcast(d.Code, protocol.MsgPlayerLeft, protocol.Players{Players: toPlayers(d.Players)})
}

// onRoundEnd runs inside the manager's lifecycle lock, so no new round of
// this room can start until the simulation is stopped and game:end is out.
func (g *Gateway) onRoundEnd(code string, res room.RoundResult) {
	g.engine.Stop(code)

	msg := protocol.GameEnd{Leaderboard: toEntries(res.Leaderboard)}
	if res.Winner != nil {
		w := toEntry(*res.Winner)
		msg.Winner = &w
	}
	g.broadcast(code, protocol.MsgGameEnd, msg)
	if res.RoomDeleted {
		g.dropGroup(code)
	}
	g.log.Info("game ended", slog.String("room", code), slog.Uint64("round", res.Round))
}

func (g *Gateway) session(sid string) *session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sessions[sid]
}

func (g *Gateway) joinLocked(code, sid string) {
	grp, ok := g.groups[code]
	if !ok {
		grp = make(map[string]struct{})
		g.groups[code] = grp
	}
	grp[sid] = struct{}{}
}

func (g *Gateway) partLocked(code, sid string) {
	if grp, ok := g.groups[code]; ok {
		delete(grp, sid)
		if len(grp) == 0 {
			delete(g.groups, code)
		}
	}
}

func (g *Gateway) dropGroup(code string) {
	g.mu.Lock()
	delete(g.groups, code)
	g.mu.Unlock()
}

// members returns the live sessions of a room.
func (g *Gateway) members(code string) []*session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	grp := g.groups[code]
	out := make([]*session, 0, len(grp))
	for sid := range grp {
		if s, ok := g.sessions[sid]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (g *Gateway) broadcast(code, t string, payload any) {
	members := g.members(code)
	if len(members) == 0 {
		return
	}
	b, err := protocol.Encode(t, payload)
	if err != nil {
		g.log.Error("encode broadcast", slog.String("type", t), slog.String("error", err.Error()))
		return
	}
	for _, s := range members {
		if err := s.conn.Send(b); err != nil {
			g.log.Debug("dropped broadcast", slog.String("session", s.id), slog.String("type", t), slog.String("error", err.Error()))
		}
	}
}

func (g *Gateway) broadcastSnapshot(snap events.Snapshot) {
	members := g.members(snap.RoomCode)
	if len(members) == 0 {
		return
	}
	msg := toMatrixUpdate(snap)

	var text, bin []byte
	for _, s := range members {
		var err error
		if s.codec == protocol.CodecMsgpack {
			if bin == nil {
				if bin, err = protocol.EncodeMsgpack(protocol.MsgMatrix, msg); err != nil {
					g.log.Error("encode snapshot", slog.String("room", snap.RoomCode), slog.String("error", err.Error()))
					return
				}
			}
			err = s.conn.SendBinary(bin)
		} else {
			if text == nil {
				if text, err = protocol.Encode(protocol.MsgMatrix, msg); err != nil {
					g.log.Error("encode snapshot", slog.String("room", snap.RoomCode), slog.String("error", err.Error()))
					return
				}
			}
			err = s.conn.Send(text)
		}
		if err != nil {
			g.log.Debug("dropped snapshot", slog.String("session", s.id), slog.Int("tick", snap.Tick))
		}
	}
}

func (g *Gateway) send(s *session, t string, payload any) {
	b, err := protocol.Encode(t, payload)
	if err != nil {
		g.log.Error("encode message", slog.String("type", t), slog.String("error", err.Error()))
		return
	}
	if err := s.conn.Send(b); err != nil {
		g.log.Debug("dropped message", slog.String("session", s.id), slog.String("type", t))
	}
}

// ack replies to request id. Requests sent without an id get no reply.
func (g *Gateway) ack(s *session, id int64, a protocol.Ack) {
	if id == 0 {
		return
	}
	b, err := protocol.EncodeAck(id, a)
	if err != nil {
		g.log.Error("encode ack", slog.String("error", err.Error()))
		return
	}
	if err := s.conn.Send(b); err != nil {
		g.log.Debug("dropped ack", slog.String("session", s.id), slog.Int64("id", id))
	}
}

func (g *Gateway) fail(s *session, id int64, err error) {
	msg := "Internal error"
	var re *room.Error
	if errors.As(err, &re) {
		msg = re.Msg
	} else {
		g.log.Error("command failed", slog.String("session", s.id), slog.String("error", err.Error()))
	}
	g.log.Debug("command rejected", slog.String("session", s.id), slog.String("error", err.Error()))
	g.ack(s, id, protocol.Ack{Success: false, Error: msg})
}

func (g *Gateway) dropPayload(s *session, env protocol.Envelope, err error) {
	g.log.Warn("dropping malformed payload",
		slog.String("session", s.id),
		slog.String("type", env.T),
		slog.String("error", err.Error()),
	)
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultUsername
	}
	if r := []rune(name); len(r) > maxUsername {
		name = string(r[:maxUsername])
	}
	return name
}
