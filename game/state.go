package game

// Internal truth authoritative per-room simulation state. Only the room's
// simulation goroutine touches it.

type State struct {
	Tick        int
	Fruits      []*Fruit
	Grid        *Grid
	Catalog     []FruitType
	SpawnChance float64
}

func NewState(gridSize int, spawnChance float64, catalog []FruitType) *State {
	if len(catalog) == 0 {
		catalog = Catalog
	}
	return &State{
		Grid:        NewGrid(gridSize, BoundsMargin),
		Catalog:     catalog,
		SpawnChance: spawnChance,
	}
}

// Slice removes the fruit with the given id, clearing its footprint, and
// returns its score. Unknown ids leave the state untouched.
func (s *State) Slice(id string) (int, bool) {
	for i, f := range s.Fruits {
		if f.ID != id {
			continue
		}
		s.Grid.ClearFruit(f)
		s.Fruits = append(s.Fruits[:i], s.Fruits[i+1:]...)
		return f.Score, true
	}
	return 0, false
}

// Boost multiplies the speed of every live fruit of the named type.
func (s *State) Boost(name string, mult float64) int {
	n := 0
	for _, f := range s.Fruits {
		if f.Name == name {
			f.Speed *= mult
			n++
		}
	}
	return n
}

// ScaleSpeed multiplies the speed of every live fruit.
func (s *State) ScaleSpeed(mult float64) int {
	for _, f := range s.Fruits {
		f.Speed *= mult
	}
	return len(s.Fruits)
}

type Stats struct {
	TotalFruits  int            `json:"totalFruits"`
	FruitsByType map[string]int `json:"fruitsByType"`
	AverageSpeed float64        `json:"averageSpeed"`
}

func (s *State) Stats() Stats {
	st := Stats{
		TotalFruits:  len(s.Fruits),
		FruitsByType: make(map[string]int),
	}
	if len(s.Fruits) == 0 {
		return st
	}
	sum := 0.0
	for _, f := range s.Fruits {
		st.FruitsByType[f.Name]++
		sum += f.Speed
	}
	st.AverageSpeed = sum / float64(len(s.Fruits))
	return st
}
