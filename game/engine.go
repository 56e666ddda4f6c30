package game

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"fruitninja/events"
)

// Publisher receives one snapshot per tick per running room.
type Publisher interface {
	PublishSnapshot(events.Snapshot)
}

type Config struct {
	TickInterval time.Duration
	GridSize     int
	SpawnChance  float64 // zero disables spawning
	Catalog      []FruitType
	// NewRand seeds the random source of each room. Defaults to a
	// randomly seeded PCG.
	NewRand func() *rand.Rand
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = TickInterval
	}
	if c.GridSize <= 0 {
		c.GridSize = GridSize
	}
	if c.SpawnChance < 0 {
		c.SpawnChance = 0
	}
	if len(c.Catalog) == 0 {
		c.Catalog = Catalog
	}
	if c.NewRand == nil {
		c.NewRand = func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
	}
	return c
}

// Engine runs one independent simulation per started room. Each simulation
// owns its fruits and grid and is only mutated from its own goroutine.
type Engine struct {
	mu   sync.Mutex
	sims map[string]*simulation
	cfg  Config
	pub  Publisher
	log  *slog.Logger
}

func NewEngine(cfg Config, pub Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sims: make(map[string]*simulation),
		cfg:  cfg.withDefaults(),
		pub:  pub,
		log:  logger.With(slog.String("component", "engine")),
	}
}

func (e *Engine) TickInterval() time.Duration { return e.cfg.TickInterval }

// Start begins ticking the room. It reports false if the room is already
// running.
func (e *Engine) Start(code string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sims[code]; ok {
		return false
	}
	s := &simulation{
		code:  code,
		state: NewState(e.cfg.GridSize, e.cfg.SpawnChance, e.cfg.Catalog),
		rng:   e.cfg.NewRand(),
		inbox: make(chan any, 64),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		pub:   e.pub,
		log:   e.log.With(slog.String("room", code)),
	}
	e.sims[code] = s
	go s.run(e.cfg.TickInterval)
	e.log.Info("simulation started", slog.String("room", code))
	return true
}

// Stop cancels the room's tick and discards its fruits. Safe to call for
// rooms that are not running.
func (e *Engine) Stop(code string) bool {
	e.mu.Lock()
	s, ok := e.sims[code]
	if ok {
		delete(e.sims, code)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	close(s.quit)
	<-s.done
	e.log.Info("simulation stopped", slog.String("room", code))
	return true
}

func (e *Engine) Running(code string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sims[code]
	return ok
}

// Close stops every running simulation.
func (e *Engine) Close() {
	e.mu.Lock()
	codes := make([]string, 0, len(e.sims))
	for code := range e.sims {
		codes = append(codes, code)
	}
	e.mu.Unlock()
	for _, code := range codes {
		e.Stop(code)
	}
}

// SliceFruit removes a fruit and returns its score, or 0 if the room is not
// running or the fruit is gone.
func (e *Engine) SliceFruit(code, fruitID string) int {
	reply := make(chan int, 1)
	n, _ := askInt(e.lookup(code), sliceCmd{FruitID: fruitID, Reply: reply}, reply)
	return n
}

// BoostFruitType multiplies the speed of every live fruit of the named type
// and returns how many were affected.
func (e *Engine) BoostFruitType(code, name string, mult float64) int {
	reply := make(chan int, 1)
	n, _ := askInt(e.lookup(code), boostCmd{Name: name, Multiplier: mult, Reply: reply}, reply)
	return n
}

// SetGlobalSpeedMultiplier multiplies the speed of every live fruit in the
// room and returns how many were affected.
func (e *Engine) SetGlobalSpeedMultiplier(code string, mult float64) int {
	reply := make(chan int, 1)
	n, _ := askInt(e.lookup(code), scaleCmd{Multiplier: mult, Reply: reply}, reply)
	return n
}

// Stats reports the room's live fruits. ok is false when the room has no
// running simulation.
func (e *Engine) Stats(code string) (Stats, bool) {
	s := e.lookup(code)
	if s == nil {
		return Stats{}, false
	}
	reply := make(chan Stats, 1)
	if !s.send(statsCmd{Reply: reply}) {
		return Stats{}, false
	}
	select {
	case st := <-reply:
		return st, true
	case <-s.done:
		return Stats{}, false
	}
}

func (e *Engine) lookup(code string) *simulation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sims[code]
}

func askInt(s *simulation, cmd any, reply <-chan int) (int, bool) {
	if s == nil || !s.send(cmd) {
		return 0, false
	}
	select {
	case n := <-reply:
		return n, true
	case <-s.done:
		return 0, false
	}
}

type simulation struct {
	code  string
	state *State
	rng   *rand.Rand
	inbox chan any
	quit  chan struct{}
	done  chan struct{}
	pub   Publisher
	log   *slog.Logger
}

func (s *simulation) send(cmd any) bool {
	select {
	case s.inbox <- cmd:
		return true
	case <-s.done:
		return false
	}
}

func (s *simulation) run(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case cmd := <-s.inbox:
			s.handleCommand(cmd)
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *simulation) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case sliceCmd:
		score, _ := s.state.Slice(c.FruitID)
		c.Reply <- score
	case boostCmd:
		c.Reply <- s.state.Boost(c.Name, c.Multiplier)
	case scaleCmd:
		c.Reply <- s.state.ScaleSpeed(c.Multiplier)
	case statsCmd:
		c.Reply <- s.state.Stats()
	}
}

func (s *simulation) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick panicked", slog.Any("panic", r), slog.Int("tick", s.state.Tick))
		}
	}()

	res := Step(s.state, s.rng)
	if res.Spawned != nil {
		s.log.Debug("fruit spawned",
			slog.String("fruit", res.Spawned.ID),
			slog.String("type", res.Spawned.Name),
		)
	}
	for _, f := range res.Invalid {
		s.log.Warn("dropped fruit with invalid geometry",
			slog.String("fruit", f.ID),
			slog.Float64("x", f.X),
			slog.Float64("y", f.Y),
			slog.Float64("radius", f.Radius),
		)
	}
	if s.pub != nil {
		s.pub.PublishSnapshot(buildSnapshot(s.code, s.state))
	}
}

func buildSnapshot(code string, st *State) events.Snapshot {
	snap := events.Snapshot{
		RoomCode: code,
		Tick:     st.Tick,
		Matrix:   st.Grid.Cells(),
		Fruits:   make([]events.FruitView, 0, len(st.Fruits)),
	}
	for _, f := range st.Fruits {
		snap.Fruits = append(snap.Fruits, events.FruitView{
			ID:     f.ID,
			Name:   f.Name,
			Symbol: f.Symbol,
			X:      f.X,
			Y:      f.Y,
			Speed:  f.Speed,
			Score:  f.Score,
			Radius: f.Radius,
		})
	}
	return snap
}
