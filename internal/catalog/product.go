package catalog

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Product is a catalog item. Nutrient fields are per 100g and kept as the
// catalog's own text; they are only interpreted when an entry is saved.
type Product struct {
	Name   string `json:"name"`
	Macros string `json:"macros"`
	Kcal   string `json:"kcal"`
}

// record is the wire shape of one catalog element. Older catalogs carry the
// macro string under "bgu", newer ones under "macros" and add an "id".
type record struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Name   string          `json:"name"`
	Bgu    string          `json:"bgu"`
	Macros string          `json:"macros"`
	Kcal   json.RawMessage `json:"kcal"`
}

// product resolves a record to a Product. The second result is false when the
// record has no usable name.
func (r *record) product() (Product, bool) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return Product{}, false
	}
	macros := r.Macros
	if macros == "" {
		macros = r.Bgu
	}
	return Product{
		Name:   name,
		Macros: macros,
		Kcal:   rawText(r.Kcal),
	}, true
}

// rawText returns a JSON scalar as text: strings are unquoted, numbers are
// kept verbatim, anything else becomes "".
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// decode parses a catalog document into products, preserving catalog order.
func decode(data []byte) ([]Product, error) {
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(records))
	for i := range records {
		if p, ok := records[i].product(); ok {
			products = append(products, p)
		}
	}
	return products, nil
}
