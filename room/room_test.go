package room

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func countOwners(ps []PlayerInfo) int {
	n := 0
	for _, p := range ps {
		if p.IsOwner {
			n++
		}
	}
	return n
}

func TestCreateRoomCodeShape(t *testing.T) {
	m := NewManager(time.Minute, nil)
	code := m.CreateRoom("c1", "alice")
	if len(code) != 6 {
		t.Fatalf("code %q has length %d, want 6", code, len(code))
	}
	for _, ch := range code {
		if !strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", ch) {
			t.Fatalf("code %q has non uppercase-alphanumeric rune %q", code, ch)
		}
	}
	ps, ok := m.Players(code)
	if !ok || len(ps) != 1 || !ps[0].IsOwner || ps[0].Username != "alice" {
		t.Fatalf("creator should be the sole owner, got %+v", ps)
	}
}

func TestCreateRoomCodesAreUnique(t *testing.T) {
	m := NewManager(time.Minute, nil)
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		code := m.CreateRoom(fmt.Sprintf("c%d", i), "p")
		if seen[code] {
			t.Fatalf("duplicate live code %q", code)
		}
		seen[code] = true
	}
}

func TestJoinReturnsOrderedPlayers(t *testing.T) {
	m := NewManager(time.Minute, nil)
	code := m.CreateRoom("c1", "alice")

	ps, err := m.JoinRoom("c2", code, "bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(ps) != 2 {
		t.Fatalf("got %d players, want 2", len(ps))
	}
	if ps[0].ID != "c1" || !ps[0].IsOwner {
		t.Fatalf("first entry should be the owner, got %+v", ps[0])
	}
	if ps[1].ID != "c2" || ps[1].IsOwner {
		t.Fatalf("second entry should be bob as non-owner, got %+v", ps[1])
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	m := NewManager(time.Minute, nil)
	if _, err := m.JoinRoom("c1", "NOPE00", "x"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("err = %v, want ErrRoomNotFound", err)
	}
	if _, ok := m.RoomOf("c1"); ok {
		t.Fatalf("failed join left a membership behind")
	}
}

func TestJoinStartedRoomFailsWithoutMembershipChange(t *testing.T) {
	m := NewManager(time.Minute, nil)
	defer m.Close()
	code := m.CreateRoom("c1", "alice")
	if _, err := m.StartRound("c1", code); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err := m.JoinRoom("c2", code, "bob")
	if !errors.Is(err, ErrRoundAlreadyStarted) {
		t.Fatalf("err = %v, want ErrRoundAlreadyStarted", err)
	}
	ps, _ := m.Players(code)
	if len(ps) != 1 {
		t.Fatalf("membership changed: %+v", ps)
	}
}

func TestOneRoomPerConnection(t *testing.T) {
	m := NewManager(time.Minute, nil)
	a := m.CreateRoom("c1", "alice")
	m.CreateRoom("c2", "bob")
	b, _ := m.RoomOf("c2")

	if _, err := m.JoinRoom("c1", b, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if code, _ := m.RoomOf("c1"); code != b {
		t.Fatalf("c1 is in %q, want %q", code, b)
	}
	if _, ok := m.Room(a); ok {
		t.Fatalf("old empty room %q should be gone", a)
	}
}

func TestStartRoundRequiresOwner(t *testing.T) {
	m := NewManager(time.Minute, nil)
	defer m.Close()
	code := m.CreateRoom("c1", "alice")
	m.JoinRoom("c2", code, "bob")

	if _, err := m.StartRound("c2", code); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	if _, err := m.StartRound("c1", "NOPE00"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("err = %v, want ErrRoomNotFound", err)
	}

	before := time.Now()
	end, err := m.StartRound("c1", code)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if end.Before(before.Add(time.Minute)) {
		t.Fatalf("end %v is earlier than start + duration", end)
	}
	info, _ := m.Room(code)
	if !info.Started {
		t.Fatalf("room should be started")
	}
	if _, err := m.StartRound("c1", code); !errors.Is(err, ErrRoundAlreadyStarted) {
		t.Fatalf("restart err = %v, want ErrRoundAlreadyStarted", err)
	}
}

func TestStartRoundResetsScores(t *testing.T) {
	m := NewManager(20*time.Millisecond, nil)
	code := m.CreateRoom("c1", "alice")
	done := make(chan RoundResult, 1)
	m.OnRoundEnd = func(_ string, res RoundResult) { done <- res }

	m.StartRound("c1", code)
	m.RecordScore(code, "c1", 40)
	<-done

	m.StartRound("c1", code)
	defer m.Close()
	board, _ := m.Leaderboard(code)
	if board[0].Score != 0 {
		t.Fatalf("score after restart = %d, want 0", board[0].Score)
	}
}

func TestOwnerTransferOnLeave(t *testing.T) {
	m := NewManager(time.Minute, nil)
	code := m.CreateRoom("c1", "alice")
	m.JoinRoom("c2", code, "bob")
	m.JoinRoom("c3", code, "carol")

	d, ok := m.LeaveRoom("c1")
	if !ok {
		t.Fatalf("leave should report membership")
	}
	if d.NewOwner != "c2" {
		t.Fatalf("new owner = %q, want earliest joined c2", d.NewOwner)
	}
	if n := countOwners(d.Players); n != 1 {
		t.Fatalf("owners after transfer = %d, want 1", n)
	}
	ps, _ := m.Players(code)
	if n := countOwners(ps); n != 1 {
		t.Fatalf("registry owners = %d, want 1", n)
	}
}

func TestNonOwnerLeaveKeepsOwner(t *testing.T) {
	m := NewManager(time.Minute, nil)
	code := m.CreateRoom("c1", "alice")
	m.JoinRoom("c2", code, "bob")

	d, _ := m.LeaveRoom("c2")
	if d.NewOwner != "" {
		t.Fatalf("unexpected owner change to %q", d.NewOwner)
	}
	ps, _ := m.Players(code)
	if len(ps) != 1 || !ps[0].IsOwner || ps[0].ID != "c1" {
		t.Fatalf("unexpected players %+v", ps)
	}
}

func TestEmptyIdleRoomIsDeleted(t *testing.T) {
	m := NewManager(time.Minute, nil)
	code := m.CreateRoom("c1", "alice")

	d, ok := m.LeaveRoom("c1")
	if !ok || !d.RoomDeleted {
		t.Fatalf("expected deletion, got %+v", d)
	}
	if _, ok := m.Room(code); ok {
		t.Fatalf("room still registered")
	}
}

func TestEmptyStartedRoomSurvivesLeave(t *testing.T) {
	m := NewManager(time.Minute, nil)
	defer m.Close()
	code := m.CreateRoom("c1", "alice")
	m.StartRound("c1", code)

	d, _ := m.LeaveRoom("c1")
	if d.RoomDeleted {
		t.Fatalf("started room must not be deleted by leave")
	}
	if _, ok := m.Room(code); !ok {
		t.Fatalf("started room vanished")
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	m := NewManager(time.Minute, nil)
	if _, ok := m.LeaveRoom("ghost"); ok {
		t.Fatalf("leave of unknown connection should be a no-op")
	}
	m.CreateRoom("c1", "alice")
	m.LeaveRoom("c1")
	if _, ok := m.LeaveRoom("c1"); ok {
		t.Fatalf("second leave should be a no-op")
	}
}

func TestRecordScoreSortsLeaderboard(t *testing.T) {
	m := NewManager(time.Minute, nil)
	code := m.CreateRoom("c1", "alice")
	m.JoinRoom("c2", code, "bob")

	m.RecordScore(code, "c1", 5)
	board, err := m.RecordScore(code, "c2", 20)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if board[0].Username != "bob" || board[0].Score != 20 || board[1].Score != 5 {
		t.Fatalf("unexpected leaderboard %+v", board)
	}

	if _, err := m.RecordScore("NOPE00", "c1", 1); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("err = %v, want ErrRoomNotFound", err)
	}
	if _, err := m.RecordScore(code, "ghost", 1); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("err = %v, want ErrNotInRoom", err)
	}
}

func TestRoundEndFiresWithinOneTick(t *testing.T) {
	const dur = 50 * time.Millisecond
	const tick = 20 * time.Millisecond

	m := NewManager(dur, nil)
	code := m.CreateRoom("c1", "alice")
	m.JoinRoom("c2", code, "bob")

	type ended struct {
		code string
		res  RoundResult
		at   time.Time
	}
	done := make(chan ended, 1)
	m.OnRoundEnd = func(c string, res RoundResult) { done <- ended{c, res, time.Now()} }

	start := time.Now()
	m.StartRound("c1", code)
	m.RecordScore(code, "c2", 10)

	select {
	case e := <-done:
		elapsed := e.at.Sub(start)
		if elapsed < dur {
			t.Fatalf("round ended after %v, before %v", elapsed, dur)
		}
		if elapsed > dur+tick+50*time.Millisecond {
			t.Fatalf("round ended late after %v", elapsed)
		}
		if e.code != code {
			t.Fatalf("ended room %q, want %q", e.code, code)
		}
		if e.res.Winner == nil || e.res.Winner.Username != "bob" {
			t.Fatalf("winner = %+v, want bob", e.res.Winner)
		}
	case <-time.After(time.Second):
		t.Fatalf("round never ended")
	}

	info, _ := m.Room(code)
	if info.Started {
		t.Fatalf("room still started after round end")
	}
}

func TestRoundEndTieGoesToEarliestJoin(t *testing.T) {
	m := NewManager(10*time.Millisecond, nil)
	code := m.CreateRoom("c1", "alice")
	m.JoinRoom("c2", code, "bob")
	m.JoinRoom("c3", code, "carol")

	done := make(chan RoundResult, 1)
	m.OnRoundEnd = func(_ string, res RoundResult) { done <- res }
	m.StartRound("c1", code)
	m.RecordScore(code, "c3", 7)
	m.RecordScore(code, "c2", 7)

	res := <-done
	if res.Winner.Username != "bob" {
		t.Fatalf("tie winner = %q, want bob", res.Winner.Username)
	}
	if len(res.Leaderboard) != 3 || res.Leaderboard[2].Username != "alice" {
		t.Fatalf("unexpected leaderboard %+v", res.Leaderboard)
	}
}

func TestRoundEndRemovesAbandonedRoom(t *testing.T) {
	m := NewManager(10*time.Millisecond, nil)
	code := m.CreateRoom("c1", "alice")
	done := make(chan RoundResult, 1)
	m.OnRoundEnd = func(_ string, res RoundResult) { done <- res }

	m.StartRound("c1", code)
	m.LeaveRoom("c1")

	res := <-done
	if !res.RoomDeleted || res.Winner != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := m.Room(code); ok {
		t.Fatalf("abandoned room survived round end")
	}
}

func TestListRooms(t *testing.T) {
	m := NewManager(time.Minute, nil)
	a := m.CreateRoom("c1", "alice")
	m.JoinRoom("c2", a, "bob")
	m.CreateRoom("c3", "carol")

	rooms := m.ListRooms()
	if len(rooms) != 2 {
		t.Fatalf("got %d rooms, want 2", len(rooms))
	}
	for _, r := range rooms {
		if r.Code == a && (r.Players != 2 || r.Owner != "alice") {
			t.Fatalf("room %s = %+v, want 2 players owned by alice", a, r)
		}
	}
}

func TestMoveToRoomReportsDeparture(t *testing.T) {
	m := NewManager(time.Minute, nil)
	defer m.Close()
	a := m.CreateRoom("c1", "alice")
	m.JoinRoom("c2", a, "bob")
	b := m.CreateRoom("c3", "carol")

	mv, err := m.MoveToRoom("c2", b, "bob")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !mv.Joined || len(mv.Players) != 2 {
		t.Fatalf("move = %+v", mv)
	}
	if mv.Left == nil || mv.Left.Code != a || len(mv.Left.Players) != 1 {
		t.Fatalf("departure = %+v", mv.Left)
	}

	mv, err = m.MoveToRoom("c2", b, "bob")
	if err != nil || mv.Joined || mv.Left != nil {
		t.Fatalf("repeat move = %+v, %v", mv, err)
	}

	if _, err := m.StartRound("c1", a); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.MoveToRoom("c2", a, "bob"); !errors.Is(err, ErrRoundAlreadyStarted) {
		t.Fatalf("expected ErrRoundAlreadyStarted, got %v", err)
	}
	if !m.IsMember("c2", b) {
		t.Fatalf("failed move must not leave the current room")
	}
}

func TestRoundsAreNumbered(t *testing.T) {
	m := NewManager(10*time.Millisecond, nil)
	defer m.Close()
	code := m.CreateRoom("c1", "alice")
	done := make(chan RoundResult, 2)
	m.OnRoundEnd = func(_ string, res RoundResult) { done <- res }

	for want := uint64(1); want <= 2; want++ {
		if _, err := m.StartRound("c1", code); err != nil {
			t.Fatalf("start round %d: %v", want, err)
		}
		select {
		case res := <-done:
			if res.Round != want {
				t.Fatalf("round = %d, want %d", res.Round, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("round %d never ended", want)
		}
	}
}

func TestRoundEndHandlerFinishesBeforeNextStart(t *testing.T) {
	m := NewManager(20*time.Millisecond, nil)
	defer m.Close()
	code := m.CreateRoom("c1", "alice")

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	restarted := make(chan error, 1)
	m.OnRoundEnd = func(_ string, res RoundResult) {
		if res.Round != 1 {
			return
		}
		go func() {
			_, err := m.StartRoundWith("c1", code, func(round uint64, _ time.Time) {
				record(fmt.Sprintf("start %d", round))
			})
			restarted <- err
		}()
		time.Sleep(20 * time.Millisecond)
		record("end 1")
	}

	if _, err := m.StartRoundWith("c1", code, func(round uint64, _ time.Time) {
		record(fmt.Sprintf("start %d", round))
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case err := <-restarted:
		if err != nil {
			t.Fatalf("restart: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("restart never happened")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) < 3 || order[0] != "start 1" || order[1] != "end 1" || order[2] != "start 2" {
		t.Fatalf("order = %v", order)
	}
}
