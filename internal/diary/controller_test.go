package diary

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korjavin/caloriediary/internal/catalog"
	"github.com/korjavin/caloriediary/internal/store"
)

var products = []catalog.Product{
	{Name: "Кефир 1%", Macros: "3,1,4", Kcal: "40"},
	{Name: "Молоко 2.5%", Macros: "2,8,2,5,4,7", Kcal: "52"},
	{Name: "Молоко 3.2%", Macros: "2.9,3.2,4.7", Kcal: "59"},
	{Name: "Сгущённое молоко", Macros: "7,2,8,5,56", Kcal: "320"},
	{Name: "Гречка", Macros: "12,6,3,3,57,1", Kcal: "313"},
	{Name: "Овсянка", Macros: "12,6.1,65", Kcal: "366"},
}

// fakeCatalog serves products and counts fetches. When gate is set, the
// first fetch blocks until gate is closed, ignoring its context, like a slow
// server answering after the client has moved on.
type fakeCatalog struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeCatalog) FetchAll(ctx context.Context) []catalog.Product {
	if f.calls.Add(1) == 1 && f.gate != nil {
		<-f.gate
	}
	return append([]catalog.Product(nil), products...)
}

type memStore struct {
	mu        sync.Mutex
	entries   []store.Entry
	lastID    uint64
	inserts   int
	insertErr error
	// deleteErr is returned after the entry has been removed, like a store
	// that fails halfway through.
	deleteErr error
}

func (m *memStore) Insert(e store.Entry) (store.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		return store.Entry{}, m.insertErr
	}
	m.lastID++
	e.ID = m.lastID
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *memStore) All() ([]store.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Entry{}, m.entries...), nil
}

func (m *memStore) DeleteByID(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
	return m.deleteErr
}

func newTestController(t *testing.T, cat Catalog, st Store) *Controller {
	t.Helper()
	c := New(cat, st, Options{
		Debounce:      20 * time.Millisecond,
		NoticeTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(c.Close)
	return c
}

func resultNames(s Snapshot) []string {
	out := make([]string, len(s.Results))
	for i, p := range s.Results {
		out[i] = p.Name
	}
	return out
}

func TestUpdateQuery_DebouncesToLatest(t *testing.T) {
	cat := &fakeCatalog{}
	c := newTestController(t, cat, &memStore{})

	c.UpdateQuery("к")
	c.UpdateQuery("ке")
	c.UpdateQuery("молоко")
	assert.Equal(t, "молоко", c.Snapshot().Query, "query text is stored immediately")

	require.Eventually(t, func() bool { return len(c.Snapshot().Results) > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Молоко 2.5%", "Молоко 3.2%", "Сгущённое молоко"}, resultNames(c.Snapshot()))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), cat.calls.Load(), "superseded queries should not fetch")
}

func TestUpdateQuery_DiscardsStaleResults(t *testing.T) {
	cat := &fakeCatalog{gate: make(chan struct{})}
	c := newTestController(t, cat, &memStore{})

	c.UpdateQuery("гречка")
	require.Eventually(t, func() bool { return cat.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// The first fetch is stuck; a newer query completes first.
	c.UpdateQuery("овсянка")
	require.Eventually(t, func() bool { return len(c.Snapshot().Results) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Овсянка"}, resultNames(c.Snapshot()))

	close(cat.gate)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"Овсянка"}, resultNames(c.Snapshot()), "late response for an old query must be dropped")
}

func TestUpdateQuery_BlankClearsResults(t *testing.T) {
	cat := &fakeCatalog{}
	c := newTestController(t, cat, &memStore{})

	c.Search(context.Background(), "кефир")
	require.Len(t, c.Snapshot().Results, 1)

	c.UpdateQuery("  ")
	assert.Empty(t, c.Snapshot().Results)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), cat.calls.Load())
}

func TestSearch_Synchronous(t *testing.T) {
	c := newTestController(t, &fakeCatalog{}, &memStore{})

	got := c.Search(context.Background(), "МОЛОКО")
	require.Len(t, got, 3)
	assert.Equal(t, "Сгущённое молоко", got[2].Name)
	assert.Equal(t, resultNames(c.Snapshot()), []string{"Молоко 2.5%", "Молоко 3.2%", "Сгущённое молоко"})
}

func TestSelectProduct(t *testing.T) {
	cat := &fakeCatalog{gate: make(chan struct{})}
	c := newTestController(t, cat, &memStore{})

	c.UpdateQuery("молоко")
	require.Eventually(t, func() bool { return cat.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	c.SelectProduct(products[2])
	close(cat.gate)
	time.Sleep(50 * time.Millisecond)

	snap := c.Snapshot()
	p, ok := snap.Selected()
	require.True(t, ok)
	assert.Equal(t, products[2], p)
	assert.Equal(t, products[2].Name, snap.Query)
	assert.Empty(t, snap.Results, "a search started before the selection must not refill the list")

	c.ClearSelection()
	_, ok = c.Snapshot().Selected()
	assert.False(t, ok)
	assert.IsType(t, Browsing{}, c.Snapshot().Selection)
}

func TestSave_NoProductIsNoop(t *testing.T) {
	st := &memStore{}
	c := newTestController(t, &fakeCatalog{}, st)
	c.UpdateWeight("100")
	before := c.Snapshot()

	_, err := c.Save(context.Background(), "100", nil)
	assert.True(t, errors.Is(err, ErrNoProduct))

	_, err = c.SaveCurrent(context.Background())
	assert.True(t, errors.Is(err, ErrNoProduct))

	assert.Equal(t, 0, st.inserts)
	assert.Equal(t, before, c.Snapshot())
}

func TestSaveCurrent(t *testing.T) {
	st := &memStore{}
	c := newTestController(t, &fakeCatalog{}, st)

	c.SelectProduct(products[2]) // 59 kcal, 2.9/3.2/4.7 per 100g
	c.UpdateWeight("200")

	saved, err := c.SaveCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), saved.ID)
	assert.Equal(t, "Молоко 3.2%", saved.Name)
	assert.Equal(t, "118", saved.Kcal)
	assert.Equal(t, "5.8", saved.Protein)
	assert.Equal(t, "6.4", saved.Fat)
	assert.Equal(t, "9.4", saved.Carbohydrate)
	assert.Equal(t, "200", saved.Weight)

	snap := c.Snapshot()
	assert.Equal(t, "", snap.Query)
	assert.Equal(t, "", snap.Weight)
	assert.IsType(t, Browsing{}, snap.Selection)
	assert.True(t, snap.Notice)
	require.NotNil(t, snap.LastSaved)
	assert.Equal(t, saved, *snap.LastSaved)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, 118.0, snap.Totals.Kcal)
	assert.Equal(t, 200.0, snap.Totals.Weight)
}

func TestSave_UnparseableNumbersBecomeZero(t *testing.T) {
	st := &memStore{}
	c := newTestController(t, &fakeCatalog{}, st)

	saved, err := c.Save(context.Background(), "много", &products[4])
	require.NoError(t, err)
	assert.Equal(t, "0", saved.Kcal)
	assert.Equal(t, "0", saved.Weight)

	// Macros with comma decimals split into too many fields and count as zero.
	saved, err = c.Save(context.Background(), "50,5", &products[4])
	require.NoError(t, err)
	assert.Equal(t, "0", saved.Protein)
	assert.Equal(t, "50.5", saved.Weight)
	assert.Equal(t, 2, st.inserts)
}

func TestSave_StoreError(t *testing.T) {
	st := &memStore{insertErr: errors.New("disk full")}
	c := newTestController(t, &fakeCatalog{}, st)
	c.SelectProduct(products[0])
	c.UpdateWeight("100")

	_, err := c.SaveCurrent(context.Background())
	require.Error(t, err)

	snap := c.Snapshot()
	assert.Equal(t, "100", snap.Weight, "fields are kept when the save fails")
	assert.False(t, snap.Notice)
}

func TestNotice_AutoDismiss(t *testing.T) {
	c := newTestController(t, &fakeCatalog{}, &memStore{})

	_, err := c.Save(context.Background(), "100", &products[0])
	require.NoError(t, err)
	require.True(t, c.Snapshot().Notice)

	require.Eventually(t, func() bool { return !c.Snapshot().Notice }, time.Second, 5*time.Millisecond)
}

func TestNotice_ExplicitDismiss(t *testing.T) {
	c := newTestController(t, &fakeCatalog{}, &memStore{})

	_, err := c.Save(context.Background(), "100", &products[0])
	require.NoError(t, err)
	c.DismissNotice()
	assert.False(t, c.Snapshot().Notice)
}

func TestNotice_NewSaveRestartsTimer(t *testing.T) {
	c := newTestController(t, &fakeCatalog{}, &memStore{})

	_, err := c.Save(context.Background(), "100", &products[0])
	require.NoError(t, err)
	time.Sleep(70 * time.Millisecond)
	_, err = c.Save(context.Background(), "100", &products[1])
	require.NoError(t, err)

	// The first timer would have fired by now.
	time.Sleep(50 * time.Millisecond)
	assert.True(t, c.Snapshot().Notice)
	require.Eventually(t, func() bool { return !c.Snapshot().Notice }, time.Second, 5*time.Millisecond)
}

func TestDeleteAndReload(t *testing.T) {
	st := &memStore{}
	c := newTestController(t, &fakeCatalog{}, st)

	a, err := c.Save(context.Background(), "100", &products[0])
	require.NoError(t, err)
	b, err := c.Save(context.Background(), "50", &products[5])
	require.NoError(t, err)
	require.Len(t, c.Snapshot().Entries, 2)

	require.NoError(t, c.Delete(context.Background(), a.ID))
	snap := c.Snapshot()
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, b.ID, snap.Entries[0].ID)
	assert.Equal(t, 183.0, snap.Totals.Kcal)

	// A fresh controller over the same store starts empty until reloaded.
	c2 := newTestController(t, &fakeCatalog{}, st)
	assert.Empty(t, c2.Snapshot().Entries)
	require.NoError(t, c2.Reload(context.Background()))
	assert.Len(t, c2.Snapshot().Entries, 1)
}

func TestDelete_StoreErrorStillReloads(t *testing.T) {
	st := &memStore{}
	c := newTestController(t, &fakeCatalog{}, st)

	a, err := c.Save(context.Background(), "100", &products[0])
	require.NoError(t, err)
	_, err = c.Save(context.Background(), "50", &products[5])
	require.NoError(t, err)

	st.mu.Lock()
	st.deleteErr = errors.New("index unavailable")
	st.mu.Unlock()

	err = c.Delete(context.Background(), a.ID)
	assert.ErrorContains(t, err, "index unavailable")
	require.Len(t, c.Snapshot().Entries, 1)
	assert.NotEqual(t, a.ID, c.Snapshot().Entries[0].ID)
}

func TestSubscribe(t *testing.T) {
	c := newTestController(t, &fakeCatalog{}, &memStore{})

	ch, cancel := c.Subscribe()
	first := <-ch
	assert.Equal(t, "", first.Query)

	c.UpdateWeight("1")
	c.UpdateWeight("12")
	c.UpdateWeight("120")

	// Only the newest snapshot is kept for a slow reader.
	latest := <-ch
	assert.Equal(t, "120", latest.Weight)
	select {
	case s := <-ch:
		t.Fatalf("unexpected extra snapshot %+v", s)
	default:
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
	cancel()
}

func TestClose(t *testing.T) {
	cat := &fakeCatalog{}
	c := New(cat, &memStore{}, Options{Debounce: 10 * time.Millisecond})
	ch, _ := c.Subscribe()
	<-ch

	c.UpdateQuery("кефир")
	c.Close()
	c.Close()

	// Drains the buffered snapshot and returns once the channel is closed.
	for range ch {
	}
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), cat.calls.Load(), "pending search should not run after Close")
}
