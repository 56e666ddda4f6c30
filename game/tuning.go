package game

import "time"

const (
	GridSize        = 100
	BoundsMargin    = 10
	TickHz          = 60
	TickInterval    = time.Second / TickHz
	SpawnChance     = 0.05 // per tick
	Gravity         = 0.08 // added to dy every tick
	MaxFallFactor   = 0.5  // dy is capped at InitialSpeed × this
	SpawnDY         = 0.5
	SpawnDriftRange = 0.3 // dx ∈ [-range/2, range/2)
	RadiusVariation = 0.3 // radius rolls base ± base×variation
	MinRadius       = 0.5
	SpeedJitterLow  = 0.8 // initial speed = base × [low, low+span)
	SpeedJitterSpan = 0.4
)
