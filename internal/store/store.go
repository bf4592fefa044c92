package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/cockroachdb/pebble"

	"github.com/korjavin/caloriediary/internal/metrics"
)

const (
	pebbleDir = "pebble"
	bleveDir  = "bleve"
)

var (
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("entry not found")
	// ErrSchemaVersion is returned when stored data uses another schema version.
	ErrSchemaVersion = errors.New("unsupported schema version")
)

// Key layout: entries live under entryPrefix followed by the big-endian id,
// so iteration order is insertion order.
var (
	entryPrefix = []byte("e/")
	seqKey      = []byte("m/seq")
)

// bleveDoc is the document indexed for each entry.
type bleveDoc struct {
	NameFolded string `json:"name_folded"`
}

// Store persists saved entries in Pebble and indexes their names in Bleve.
type Store struct {
	db    *pebble.DB
	index bleve.Index

	mu     sync.Mutex // serialises id assignment
	lastID uint64

	// OpHist, when set, receives the latency of every store operation.
	OpHist *metrics.Histogram
}

// Open opens the diary in dataDir, creating it on first use.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if _, err := ensureManifest(dataDir); err != nil {
		return nil, err
	}

	db, err := pebble.Open(filepath.Join(dataDir, pebbleDir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	idx, err := openIndex(filepath.Join(dataDir, bleveDir))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, index: idx}
	if s.lastID, err = s.readSeq(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func openIndex(path string) (bleve.Index, error) {
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open bleve index: %w", err)
		}
		return idx, nil
	}
	idx, err := bleve.New(path, newBleveMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return idx, nil
}

// Close releases all resources held by the store.
func (s *Store) Close() error {
	var errs []error
	if err := s.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("bleve: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("pebble: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("store close: %w", err)
	}
	return nil
}

func (s *Store) observe(start time.Time) {
	if s.OpHist != nil {
		s.OpHist.Since(start)
	}
}

// Insert assigns the next id to e, persists it and returns the stored entry.
func (s *Store) Insert(e Entry) (Entry, error) {
	defer s.observe(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.lastID + 1
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(entryKey(e.ID), e.Encode(), nil); err != nil {
		return Entry{}, fmt.Errorf("pebble set entry: %w", err)
	}
	if err := b.Set(seqKey, encodeID(e.ID), nil); err != nil {
		return Entry{}, fmt.Errorf("pebble set seq: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return Entry{}, fmt.Errorf("pebble commit: %w", err)
	}
	s.lastID = e.ID

	if err := s.index.Index(docID(e.ID), bleveDoc{NameFolded: FoldName(e.Name)}); err != nil {
		// Drop the row so a failed insert leaves no entry behind. The sequence
		// stays advanced; ids are never reused.
		if derr := s.db.Delete(entryKey(e.ID), pebble.Sync); derr != nil {
			return Entry{}, errors.Join(fmt.Errorf("bleve index: %w", err), fmt.Errorf("pebble rollback: %w", derr))
		}
		return Entry{}, fmt.Errorf("bleve index: %w", err)
	}
	return e, nil
}

// Get returns the entry with the given id, or ErrNotFound.
func (s *Store) Get(id uint64) (Entry, error) {
	val, closer, err := s.db.Get(entryKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	var e Entry
	if err := e.Decode(val); err != nil {
		return Entry{}, fmt.Errorf("decode entry %d: %w", id, err)
	}
	e.ID = id
	return e, nil
}

// All returns every entry in insertion order.
func (s *Store) All() ([]Entry, error) {
	defer s.observe(time.Now())

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: entryPrefix,
		UpperBound: prefixEnd(entryPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()

	entries := []Entry{}
	for iter.First(); iter.Valid(); iter.Next() {
		id := binary.BigEndian.Uint64(iter.Key()[len(entryPrefix):])
		var e Entry
		if err := e.Decode(iter.Value()); err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", id, err)
		}
		e.ID = id
		entries = append(entries, e)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	return entries, nil
}

// DeleteByID removes the entry with the given id. Unknown ids are ignored.
// The index goes first so a failure leaves the row in place.
func (s *Store) DeleteByID(id uint64) error {
	defer s.observe(time.Now())

	if err := s.index.Delete(docID(id)); err != nil {
		return fmt.Errorf("bleve delete: %w", err)
	}
	if err := s.db.Delete(entryKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

// Find searches saved entry names. limit caps the number of results (max 100).
func (s *Store) Find(q string, limit int) ([]Entry, error) {
	defer s.observe(time.Now())

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	folded := FoldName(q)
	if folded == "" {
		return []Entry{}, nil
	}

	boolQ := bleve.NewBooleanQuery()

	phraseQ := bleve.NewMatchPhraseQuery(folded)
	phraseQ.SetField("name_folded")
	phraseQ.SetBoost(10)
	boolQ.AddShould(phraseQ)

	for _, token := range strings.Fields(folded) {
		prefixQ := bleve.NewPrefixQuery(token)
		prefixQ.SetField("name_folded")
		prefixQ.SetBoost(5)
		boolQ.AddShould(prefixQ)

		// Typo tolerance only where a single edit cannot swamp the token.
		if n := len([]rune(token)); n >= 4 {
			fuzzyQ := bleve.NewFuzzyQuery(token)
			fuzzyQ.SetField("name_folded")
			fuzzyQ.Fuzziness = 1
			if n >= 8 {
				fuzzyQ.Fuzziness = 2
			}
			boolQ.AddShould(fuzzyQ)
		}
	}

	res, err := s.index.Search(bleve.NewSearchRequestOptions(boolQ, limit, 0, false))
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	entries := make([]Entry, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		e, err := s.Get(id)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) readSeq() (uint64, error) {
	val, closer, err := s.db.Get(seqKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read sequence: %w", err)
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("read sequence: corrupt value of %d bytes", len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

func encodeID(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func entryKey(id uint64) []byte {
	return append(append([]byte(nil), entryPrefix...), encodeID(id)...)
}

func docID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// newBleveMapping builds the index mapping used when creating a fresh index.
func newBleveMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = simple.Name
	textField.Store = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("name_folded", textField)

	im.DefaultMapping = docMapping
	return im
}
