package diary

import (
	"github.com/korjavin/caloriediary/internal/catalog"
	"github.com/korjavin/caloriediary/internal/store"
)

// Selection is the search screen mode: Browsing or ProductChosen.
type Selection interface {
	isSelection()
}

// Browsing means no product is selected; the query drives the result list.
type Browsing struct{}

// ProductChosen carries the selected product while the weight is entered.
type ProductChosen struct {
	Product catalog.Product
}

func (Browsing) isSelection()      {}
func (ProductChosen) isSelection() {}

// Snapshot is an immutable copy of the controller state.
type Snapshot struct {
	Query     string
	Results   []catalog.Product
	Selection Selection
	Weight    string
	Entries   []store.Entry
	Totals    store.Totals
	// Notice is the transient "saved" confirmation.
	Notice    bool
	LastSaved *store.Entry
}

// Selected returns the chosen product, if any.
func (s Snapshot) Selected() (catalog.Product, bool) {
	if pc, ok := s.Selection.(ProductChosen); ok {
		return pc.Product, true
	}
	return catalog.Product{}, false
}

type state struct {
	query     string
	results   []catalog.Product
	selection Selection
	weight    string
	entries   []store.Entry
	notice    bool
	lastSaved *store.Entry
}

func (s *state) snapshot() Snapshot {
	snap := Snapshot{
		Query:     s.query,
		Results:   append([]catalog.Product{}, s.results...),
		Selection: s.selection,
		Weight:    s.weight,
		Entries:   append([]store.Entry{}, s.entries...),
		Totals:    store.Sum(s.entries),
		Notice:    s.notice,
	}
	if s.lastSaved != nil {
		e := *s.lastSaved
		snap.LastSaved = &e
	}
	return snap
}
