package catalog

import (
	"strings"

	"golang.org/x/text/cases"
)

// Filter returns the products whose name contains q, ignoring case.
// Names that start with q come first; catalog order is kept within each group.
func Filter(products []Product, q string) []Product {
	// A Caser is stateful, so each call gets its own.
	fold := cases.Fold()
	needle := fold.String(q)

	var prefix, inner []Product
	for _, p := range products {
		name := fold.String(p.Name)
		switch {
		case strings.HasPrefix(name, needle):
			prefix = append(prefix, p)
		case strings.Contains(name, needle):
			inner = append(inner, p)
		}
	}

	out := make([]Product, 0, len(prefix)+len(inner))
	out = append(out, prefix...)
	return append(out, inner...)
}
