package network

import (
	"fruitninja/events"
	"fruitninja/protocol"
	"fruitninja/room"
)

func toPlayers(ps []room.PlayerInfo) []protocol.Player {
	out := make([]protocol.Player, 0, len(ps))
	for _, p := range ps {
		out = append(out, protocol.Player{ID: p.ID, Username: p.Username, IsOwner: p.IsOwner})
	}
	return out
}

func toEntry(s room.Standing) protocol.LeaderboardEntry {
	return protocol.LeaderboardEntry{Username: s.Username, Score: s.Score, IsOwner: s.IsOwner}
}

func toEntries(board []room.Standing) []protocol.LeaderboardEntry {
	out := make([]protocol.LeaderboardEntry, 0, len(board))
	for _, s := range board {
		out = append(out, toEntry(s))
	}
	return out
}

func toMatrixUpdate(s events.Snapshot) protocol.MatrixUpdate {
	m := protocol.MatrixUpdate{
		RoomCode: s.RoomCode,
		Matrix:   s.Matrix,
		Fruits:   make([]protocol.FruitState, 0, len(s.Fruits)),
	}
	for _, f := range s.Fruits {
		m.Fruits = append(m.Fruits, protocol.FruitState{
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
	return m
}
