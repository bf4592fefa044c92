// Package diary holds the search/select/save state machine behind the food
// diary front ends.
package diary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/korjavin/caloriediary/internal/catalog"
	"github.com/korjavin/caloriediary/internal/nutrient"
	"github.com/korjavin/caloriediary/internal/store"
)

// ErrNoProduct is returned by Save when no product is given.
var ErrNoProduct = errors.New("no product selected")

// Catalog supplies the full product list. Implementations fail closed.
type Catalog interface {
	FetchAll(ctx context.Context) []catalog.Product
}

// Store persists saved entries.
type Store interface {
	Insert(e store.Entry) (store.Entry, error)
	All() ([]store.Entry, error)
	DeleteByID(id uint64) error
}

// Options tune the controller timings.
type Options struct {
	// Debounce is how long the query must stay unchanged before a search runs.
	Debounce time.Duration
	// NoticeTimeout is how long the save confirmation stays up.
	NoticeTimeout time.Duration
	Logger        *slog.Logger
}

const (
	defaultDebounce      = 300 * time.Millisecond
	defaultNoticeTimeout = 3 * time.Second
)

// inflight is the catalog fetch of one search.
type inflight struct {
	seq    uint64
	cancel context.CancelFunc
}

// Controller owns the diary state. All methods are safe for concurrent use;
// observers read copies through Snapshot and Subscribe.
type Controller struct {
	catalog       Catalog
	store         Store
	debounce      time.Duration
	noticeTimeout time.Duration
	log           *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex
	st state

	// seq identifies the latest search; results tagged with an older seq are dropped.
	seq     uint64
	pending *time.Timer
	fetch   *inflight

	noticeTimer *time.Timer
	noticeGen   uint64

	subs    map[uint64]chan Snapshot
	nextSub uint64
	closed  bool
}

// New creates a Controller in the Browsing state with an empty entry list.
// Call Reload to populate the entries from the store.
func New(cat Catalog, st Store, opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.NoticeTimeout <= 0 {
		opts.NoticeTimeout = defaultNoticeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		catalog:       cat,
		store:         st,
		debounce:      opts.Debounce,
		noticeTimeout: opts.NoticeTimeout,
		log:           opts.Logger,
		ctx:           ctx,
		cancel:        cancel,
		st:            state{selection: Browsing{}},
		subs:          make(map[uint64]chan Snapshot),
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.snapshot()
}

// Subscribe returns a channel that receives the current state immediately and
// then after every change. A slow reader only sees the latest snapshot.
// The returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- c.st.snapshot()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

// publishLocked pushes the current state to every subscriber, replacing any
// snapshot the subscriber has not read yet.
func (c *Controller) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.st.snapshot()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// UpdateQuery stores the query text and schedules a debounced search.
// A blank query clears the results without searching.
func (c *Controller) UpdateQuery(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.st.query = text
	seq := c.invalidateSearchLocked()
	if strings.TrimSpace(text) == "" {
		c.st.results = nil
	} else {
		c.pending = time.AfterFunc(c.debounce, func() { c.runSearch(seq, text) })
	}
	c.publishLocked()
}

// Search runs a search for text right away and returns the ranked matches.
// The results are applied to the state only if no newer search or selection
// happened meanwhile.
func (c *Controller) Search(ctx context.Context, text string) []catalog.Product {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return []catalog.Product{}
	}
	c.st.query = text
	seq := c.invalidateSearchLocked()
	if strings.TrimSpace(text) == "" {
		c.st.results = nil
		c.publishLocked()
		c.mu.Unlock()
		return []catalog.Product{}
	}
	fctx, cancel := context.WithCancel(ctx)
	c.fetch = &inflight{seq: seq, cancel: cancel}
	c.publishLocked()
	c.mu.Unlock()

	results := catalog.Filter(c.catalog.FetchAll(fctx), text)
	c.applyResults(seq, results)
	return results
}

// invalidateSearchLocked supersedes any scheduled or running search and
// returns the sequence number for the next one.
func (c *Controller) invalidateSearchLocked() uint64 {
	c.seq++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	if c.fetch != nil {
		c.fetch.cancel()
		c.fetch = nil
	}
	return c.seq
}

func (c *Controller) runSearch(seq uint64, q string) {
	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.pending = nil
	c.fetch = &inflight{seq: seq, cancel: cancel}
	c.mu.Unlock()

	start := time.Now()
	results := catalog.Filter(c.catalog.FetchAll(ctx), q)
	c.log.Debug("search finished", "query", q, "seq", seq, "results", len(results), "duration", time.Since(start))
	c.applyResults(seq, results)
}

func (c *Controller) applyResults(seq uint64, results []catalog.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fetch != nil && c.fetch.seq == seq {
		c.fetch.cancel()
		c.fetch = nil
	}
	if c.closed || seq != c.seq {
		c.log.Debug("discarding stale search results", "seq", seq, "latest", c.seq)
		return
	}
	c.st.results = results
	c.publishLocked()
}

// SelectProduct chooses p: the result list is cleared, the query shows the
// product name and pending searches are dropped.
func (c *Controller) SelectProduct(p catalog.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.invalidateSearchLocked()
	c.st.selection = ProductChosen{Product: p}
	c.st.query = p.Name
	c.st.results = nil
	c.publishLocked()
}

// ClearSelection returns to Browsing, keeping the query and weight.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.st.selection = Browsing{}
	c.publishLocked()
}

// UpdateWeight stores the raw weight text. It is only interpreted on save.
func (c *Controller) UpdateWeight(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.st.weight = text
	c.publishLocked()
}

// SaveCurrent saves the selected product with the current weight text.
func (c *Controller) SaveCurrent(ctx context.Context) (store.Entry, error) {
	c.mu.Lock()
	weight := c.st.weight
	var product *catalog.Product
	if pc, ok := c.st.selection.(ProductChosen); ok {
		p := pc.Product
		product = &p
	}
	c.mu.Unlock()
	return c.Save(ctx, weight, product)
}

// Save records weight grams of product. The nutrients are scaled to the
// weight before they are stored. On success the entry list is reloaded, the
// query, weight and selection are cleared and the confirmation notice is shown.
// A nil product returns ErrNoProduct and changes nothing.
func (c *Controller) Save(ctx context.Context, weight string, product *catalog.Product) (store.Entry, error) {
	if product == nil {
		c.log.Error("save without a product", "weight", weight)
		return store.Entry{}, ErrNoProduct
	}
	if err := ctx.Err(); err != nil {
		return store.Entry{}, err
	}
	c.log.Info("saving entry", "product", product.Name, "weight", weight)

	n := nutrient.Compute(product.Kcal, product.Macros, weight)
	saved, err := c.store.Insert(store.Entry{
		Name:         product.Name,
		Kcal:         nutrient.Format(n.Kcal),
		Protein:      nutrient.Format(n.Protein),
		Fat:          nutrient.Format(n.Fat),
		Carbohydrate: nutrient.Format(n.Carbohydrate),
		Weight:       nutrient.Format(n.Weight),
	})
	if err != nil {
		c.log.Error("save failed", "product", product.Name, "error", err)
		return store.Entry{}, fmt.Errorf("insert entry: %w", err)
	}

	entries, loadErr := c.store.All()

	c.mu.Lock()
	defer c.mu.Unlock()
	if loadErr != nil {
		c.log.Error("reload after save failed", "error", loadErr)
	} else {
		c.st.entries = entries
	}
	c.invalidateSearchLocked()
	c.st.query = ""
	c.st.weight = ""
	c.st.results = nil
	c.st.selection = Browsing{}
	c.st.lastSaved = &saved
	c.showNoticeLocked()
	c.publishLocked()
	return saved, nil
}

func (c *Controller) showNoticeLocked() {
	if c.closed {
		return
	}
	c.stopNoticeLocked()
	c.st.notice = true
	gen := c.noticeGen
	c.noticeTimer = time.AfterFunc(c.noticeTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.noticeGen || !c.st.notice {
			return
		}
		c.noticeTimer = nil
		c.st.notice = false
		c.publishLocked()
	})
}

// stopNoticeLocked cancels the auto-dismiss timer. The generation bump keeps
// a timer that already fired from clearing a newer notice.
func (c *Controller) stopNoticeLocked() {
	c.noticeGen++
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
		c.noticeTimer = nil
	}
}

// DismissNotice hides the save confirmation now.
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopNoticeLocked()
	if c.st.notice {
		c.st.notice = false
		c.publishLocked()
	}
}

// Reload replaces the entry list with the store contents.
func (c *Controller) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := c.store.All()
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.entries = entries
	c.publishLocked()
	return nil
}

// Delete removes the entry with the given id and reloads the list. The list
// is reloaded even when the store reports an error.
func (c *Controller) Delete(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.store.DeleteByID(id); err != nil {
		// The store may have changed anyway; show what it holds now.
		if rerr := c.Reload(ctx); rerr != nil {
			c.log.Error("reload after failed delete", "id", id, "error", rerr)
		}
		return fmt.Errorf("delete entry %d: %w", id, err)
	}
	c.log.Info("entry deleted", "id", id)
	return c.Reload(ctx)
}

// Close stops timers, cancels running searches and closes all subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.invalidateSearchLocked()
	c.stopNoticeLocked()
	c.closed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.cancel()
}
