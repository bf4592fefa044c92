package nutrient

import (
	"math"
	"strconv"
	"strings"
)

// Macros is the protein/fat/carbohydrate composition of a product.
type Macros struct {
	Protein      float64
	Fat          float64
	Carbohydrate float64
}

// Nutrients holds absolute values for a consumed weight.
type Nutrients struct {
	Kcal         float64
	Protein      float64
	Fat          float64
	Carbohydrate float64
	Weight       float64
}

// ParseNumber coerces user or catalog text to a number.
// A comma is accepted as the decimal separator. Anything that does not parse
// to a finite number yields 0.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ParseMacros parses a "protein,fat,carbohydrate" string.
// Exactly three comma-separated fields are required; otherwise all values are zero.
func ParseMacros(s string) Macros {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Macros{}
	}
	return Macros{
		Protein:      ParseNumber(parts[0]),
		Fat:          ParseNumber(parts[1]),
		Carbohydrate: ParseNumber(parts[2]),
	}
}

// Scale converts a per-100g value to the value for weight grams.
func Scale(perHundred, weight float64) float64 {
	return perHundred * weight / 100
}

// Compute scales per-100g kcal and macros to the consumed weight.
// All inputs are raw text; unparseable fields count as zero.
func Compute(kcal, macros, weight string) Nutrients {
	w := ParseNumber(weight)
	m := ParseMacros(macros)
	return Nutrients{
		Kcal:         Scale(ParseNumber(kcal), w),
		Protein:      Scale(m.Protein, w),
		Fat:          Scale(m.Fat, w),
		Carbohydrate: Scale(m.Carbohydrate, w),
		Weight:       w,
	}
}

// Format renders v in the shortest decimal form that parses back to v.
func Format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
