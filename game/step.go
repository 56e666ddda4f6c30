package game

import (
	"math"
	"math/rand/v2"
)

type StepResult struct {
	Spawned *Fruit
	Removed []*Fruit // left the playable bounds
	Invalid []*Fruit // non-finite geometry, dropped
}

// Step advances the room by one tick: spawn, gravity, clear footprints,
// integrate and redraw. Fruits leaving the playable bounds are dropped.
func Step(s *State, rng *rand.Rand) StepResult {
	s.Tick++

	var res StepResult
	if rng.Float64() < s.SpawnChance {
		res.Spawned = spawnFruit(s, rng)
	}

	applyGravity(s.Fruits)

	for _, f := range s.Fruits {
		s.Grid.ClearFruit(f)
	}

	live := s.Fruits[:0]
	for _, f := range s.Fruits {
		scale := 1.0
		if f.InitialSpeed > 0 {
			scale = f.Speed / f.InitialSpeed
		}
		f.X += f.DX * f.Speed
		f.Y += f.DY * scale

		if !f.finite() {
			res.Invalid = append(res.Invalid, f)
			continue
		}
		if !s.Grid.InBounds(f.X, f.Y) {
			res.Removed = append(res.Removed, f)
			continue
		}
		s.Grid.DrawFruit(f)
		live = append(live, f)
	}
	for i := len(live); i < len(s.Fruits); i++ {
		s.Fruits[i] = nil
	}
	s.Fruits = live

	return res
}

func spawnFruit(s *State, rng *rand.Rand) *Fruit {
	t := selectFruitType(s.Catalog, rng)

	variation := t.Radius * RadiusVariation
	radius := math.Max(MinRadius, t.Radius+rng.Float64()*variation*2-variation)
	speed := t.Speed * (SpeedJitterLow + rng.Float64()*SpeedJitterSpan)

	lo := float64(s.Grid.margin) + radius
	hi := float64(s.Grid.size-s.Grid.margin) - radius
	x := (lo + hi) / 2
	if hi > lo {
		x = math.Floor(lo + rng.Float64()*(hi-lo))
	}

	f := &Fruit{
		ID:           newFruitID(),
		Name:         t.Name,
		Symbol:       t.Symbol,
		Score:        t.Score,
		Radius:       radius,
		X:            x,
		Y:            0,
		DX:           (rng.Float64() - 0.5) * SpawnDriftRange,
		DY:           SpawnDY,
		Speed:        speed,
		InitialSpeed: speed,
	}
	s.Fruits = append(s.Fruits, f)
	return f
}

// selectFruitType draws a type weighted by (1 - rarity).
func selectFruitType(types []FruitType, rng *rand.Rand) FruitType {
	total := 0.0
	for _, t := range types {
		total += 1 - t.Rarity
	}
	r := rng.Float64() * total

	acc := 0.0
	for _, t := range types {
		acc += 1 - t.Rarity
		if r < acc {
			return t
		}
	}
	return types[0]
}

func applyGravity(fruits []*Fruit) {
	for _, f := range fruits {
		f.DY = math.Min(f.DY+Gravity, f.InitialSpeed*MaxFallFactor)
	}
}
