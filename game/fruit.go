package game

import (
	"math"

	"github.com/google/uuid"
)

// FruitType is one archetype of the static spawn catalog.
type FruitType struct {
	Name   string
	Symbol string
	Speed  float64
	Score  int
	Radius float64
	Rarity float64 // 0..1, higher spawns less often
}

// Catalog is the default set of fruit archetypes, most common first.
var Catalog = []FruitType{
	{Name: "Apple", Symbol: "🍎", Speed: 2.0, Score: 5, Radius: 6, Rarity: 0.1},
	{Name: "Orange", Symbol: "🍊", Speed: 1.8, Score: 8, Radius: 10, Rarity: 0.3},
	{Name: "Banana", Symbol: "🍌", Speed: 1.5, Score: 10, Radius: 3, Rarity: 0.5},
	{Name: "Cherry", Symbol: "🍒", Speed: 2.2, Score: 15, Radius: 8, Rarity: 0.7},
	{Name: "Watermelon", Symbol: "🍉", Speed: 1.2, Score: 20, Radius: 10, Rarity: 0.9},
}

type Fruit struct {
	ID     string
	Name   string
	Symbol string
	Score  int
	Radius float64

	X, Y   float64
	DX, DY float64

	Speed        float64
	InitialSpeed float64
}

func newFruitID() string {
	return uuid.NewString()
}

// Footprint returns the grid cells covered by the fruit: a filled disc of
// the rounded radius around the rounded center.
func (f *Fruit) Footprint() [][2]int {
	if !f.finite() {
		return nil
	}
	cx, cy := roundInt(f.X), roundInt(f.Y)
	r := roundInt(f.Radius)
	cells := make([][2]int, 0, (2*r+1)*(2*r+1))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				cells = append(cells, [2]int{cx + dx, cy + dy})
			}
		}
	}
	return cells
}

func (f *Fruit) finite() bool {
	for _, v := range []float64{f.X, f.Y, f.Radius} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return f.Radius >= 0 && f.Radius <= GridSize
}
