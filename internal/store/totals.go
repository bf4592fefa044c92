package store

import "github.com/korjavin/caloriediary/internal/nutrient"

// Totals is the aggregate of a list of entries.
type Totals struct {
	Kcal         float64 `json:"kcal"`
	Protein      float64 `json:"protein"`
	Fat          float64 `json:"fat"`
	Carbohydrate float64 `json:"carbohydrate"`
	Weight       float64 `json:"weight"`
}

// Sum adds up entries. Fields that do not parse as numbers count as zero.
func Sum(entries []Entry) Totals {
	var t Totals
	for _, e := range entries {
		t.Kcal += nutrient.ParseNumber(e.Kcal)
		t.Protein += nutrient.ParseNumber(e.Protein)
		t.Fat += nutrient.ParseNumber(e.Fat)
		t.Carbohydrate += nutrient.ParseNumber(e.Carbohydrate)
		t.Weight += nutrient.ParseNumber(e.Weight)
	}
	return t
}
