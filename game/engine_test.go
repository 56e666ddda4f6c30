package game

import (
	"math/rand/v2"
	"testing"
	"time"

	"fruitninja/events"
)

type fakePublisher struct {
	ch chan events.Snapshot
}

func (p *fakePublisher) PublishSnapshot(s events.Snapshot) {
	select {
	case p.ch <- s:
	default:
	}
}

func newTestEngine(spawn float64) (*Engine, *fakePublisher) {
	pub := &fakePublisher{ch: make(chan events.Snapshot, 256)}
	e := NewEngine(Config{
		TickInterval: 5 * time.Millisecond,
		SpawnChance:  spawn,
		NewRand:      func() *rand.Rand { return rand.New(rand.NewPCG(7, 7)) },
	}, pub, nil)
	return e, pub
}

func waitSnapshot(t *testing.T, pub *fakePublisher, match func(events.Snapshot) bool) events.Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-pub.ch:
			if match(s) {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for snapshot")
		}
	}
}

func TestEngineStartIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(0)
	defer e.Close()

	if !e.Start("ROOM01") {
		t.Fatalf("first start should report true")
	}
	if e.Start("ROOM01") {
		t.Fatalf("second start should be a no-op")
	}
	if !e.Running("ROOM01") {
		t.Fatalf("expected room to be running")
	}
}

func TestEngineStopIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(0)
	if e.Stop("NOPE00") {
		t.Fatalf("stop of unknown room should report false")
	}
	e.Start("ROOM01")
	if !e.Stop("ROOM01") {
		t.Fatalf("stop of running room should report true")
	}
	if e.Stop("ROOM01") {
		t.Fatalf("second stop should be a no-op")
	}
	if _, ok := e.Stats("ROOM01"); ok {
		t.Fatalf("stats should be absent after stop")
	}
}

func TestEnginePublishesTaggedSnapshots(t *testing.T) {
	e, pub := newTestEngine(1)
	defer e.Close()
	e.Start("AAAAAA")

	s := waitSnapshot(t, pub, func(s events.Snapshot) bool { return len(s.Fruits) > 0 })
	if s.RoomCode != "AAAAAA" {
		t.Fatalf("snapshot room = %q, want AAAAAA", s.RoomCode)
	}
	if len(s.Matrix) != GridSize || len(s.Matrix[0]) != GridSize {
		t.Fatalf("matrix is %dx%d, want full grid", len(s.Matrix), len(s.Matrix[0]))
	}
}

func TestEngineRoomsAreIsolated(t *testing.T) {
	e, pub := newTestEngine(1)
	defer e.Close()
	e.Start("AAAAAA")
	e.Start("BBBBBB")

	a := waitSnapshot(t, pub, func(s events.Snapshot) bool { return s.RoomCode == "AAAAAA" && len(s.Fruits) > 0 })
	fruitID := a.Fruits[0].ID

	if got := e.SliceFruit("BBBBBB", fruitID); got != 0 {
		t.Fatalf("slicing room A's fruit through room B scored %d", got)
	}
}

func TestEngineSliceFruit(t *testing.T) {
	e, pub := newTestEngine(1)
	defer e.Close()
	e.Start("AAAAAA")

	s := waitSnapshot(t, pub, func(s events.Snapshot) bool { return len(s.Fruits) > 0 })
	f := s.Fruits[0]

	if got := e.SliceFruit("AAAAAA", f.ID); got != f.Score {
		t.Fatalf("slice scored %d, want %d", got, f.Score)
	}
	if got := e.SliceFruit("AAAAAA", f.ID); got != 0 {
		t.Fatalf("second slice of the same fruit scored %d", got)
	}
	if got := e.SliceFruit("NOPE00", f.ID); got != 0 {
		t.Fatalf("slice on unknown room scored %d", got)
	}
}

func TestEngineStatsAndSpeedControls(t *testing.T) {
	e, pub := newTestEngine(1)
	defer e.Close()

	if _, ok := e.Stats("AAAAAA"); ok {
		t.Fatalf("stats should be absent before start")
	}
	if n := e.BoostFruitType("AAAAAA", "Apple", 2); n != 0 {
		t.Fatalf("boost on stopped room affected %d", n)
	}

	e.Start("AAAAAA")
	waitSnapshot(t, pub, func(s events.Snapshot) bool { return len(s.Fruits) > 0 })

	st, ok := e.Stats("AAAAAA")
	if !ok {
		t.Fatalf("expected stats for running room")
	}
	if st.TotalFruits == 0 || st.AverageSpeed <= 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if n := e.SetGlobalSpeedMultiplier("AAAAAA", 1); n == 0 {
		t.Fatalf("global multiplier affected no fruits")
	}
}
