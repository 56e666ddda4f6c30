package game

// Commands handled on a simulation's own goroutine. Reply channels must be
// buffered so a simulation never blocks on a caller that gave up.

type sliceCmd struct {
	FruitID string
	Reply   chan<- int
}

type boostCmd struct {
	Name       string
	Multiplier float64
	Reply      chan<- int
}

type scaleCmd struct {
	Multiplier float64
	Reply      chan<- int
}

type statsCmd struct {
	Reply chan<- Stats
}
