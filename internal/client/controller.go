package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// View selects how the last result set is presented.
type View string

const (
	ViewTable     View = "table"
	ViewAnalytics View = "analytics"
)

// DefaultFrequency is the window a fresh controller starts with.
const DefaultFrequency = 30

var (
	// ErrSuperseded is returned by a query whose result was discarded
	// because a newer query started after it.
	ErrSuperseded = errors.New("query superseded by a newer filter")
	ErrNotEditing = errors.New("no add or edit form is open")
	ErrBadView    = errors.New("view must be table or analytics")
)

func (v View) Valid() bool {
	return v == ViewTable || v == ViewAnalytics
}

// Editing is the open add/edit form. Original is nil when adding.
type Editing struct {
	Original *core.Transaction
}

func (e *Editing) Adding() bool {
	return e.Original == nil
}

// State is the user-visible selection.
type State struct {
	Filter  core.Filter
	View    View
	Editing *Editing
}

// Snapshot is a consistent copy of what should be displayed.
type Snapshot struct {
	State
	// Rows is the result of the latest completed query, newest first.
	Rows []core.Transaction
	// Report is set only in the analytics view.
	Report *analytics.Report
	// Loaded is false until the first query succeeds.
	Loaded bool
	// Err is the failure of the latest query, if any. Rows still hold the last good result.
	Err        error
	Generation uint64
}

// Controller holds the filter state and guarantees the displayed rows come
// from the most recent query. It is safe for concurrent use.
type Controller struct {
	api    TransactionAPI
	sess   core.Session
	logger *log.Logger

	mu      sync.Mutex
	state   State
	rows    []core.Transaction
	loaded  bool
	lastErr error
	gen     uint64
	cancel  context.CancelFunc
}

type ControllerOption func(*Controller)

func WithLogger(l *log.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithInitialState replaces the default of the last 30 days, all types, table view.
func WithInitialState(f core.Filter, v View) ControllerOption {
	return func(c *Controller) {
		c.state.Filter = f
		if v.Valid() {
			c.state.View = v
		}
	}
}

func NewController(api TransactionAPI, sess core.Session, opts ...ControllerOption) *Controller {
	freq, _ := core.LastDays(DefaultFrequency)
	c := &Controller{
		api:   api,
		sess:  sess,
		state: State{Filter: core.Filter{Frequency: freq, Type: core.TypeAll}, View: ViewTable},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New(log.DefaultConfig())
	}
	c.logger = c.logger.WithComponent(log.ComponentClient)
	return c
}

// Refresh re-runs the query for the current filter.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.query(ctx)
}

// SetFrequency changes the date window and re-queries. Setting the current value is a no-op.
func (c *Controller) SetFrequency(ctx context.Context, freq core.Frequency) error {
	return c.updateFilter(ctx, func(f core.Filter) core.Filter {
		f.Frequency = freq
		return f
	})
}

// SetType changes the type filter and re-queries. Setting the current value is a no-op.
func (c *Controller) SetType(ctx context.Context, tf core.TypeFilter) error {
	return c.updateFilter(ctx, func(f core.Filter) core.Filter {
		f.Type = tf
		return f
	})
}

// SetFilter replaces both filter values in one state update and re-queries once.
func (c *Controller) SetFilter(ctx context.Context, next core.Filter) error {
	return c.updateFilter(ctx, func(core.Filter) core.Filter { return next })
}

func (c *Controller) updateFilter(ctx context.Context, change func(core.Filter) core.Filter) error {
	if !c.sess.Authenticated() {
		return core.ErrUnauthenticated
	}

	c.mu.Lock()
	f := change(c.state.Filter)
	if f.Type == "" {
		f.Type = core.TypeAll
	}
	if err := f.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state.Filter.Key() == f.Key() {
		c.mu.Unlock()
		return nil
	}
	c.state.Filter = f
	c.mu.Unlock()

	return c.query(ctx)
}

// SetView switches presentation only. It never queries.
func (c *Controller) SetView(v View) error {
	if !v.Valid() {
		return fmt.Errorf("%w: %q", ErrBadView, v)
	}
	c.mu.Lock()
	c.state.View = v
	c.mu.Unlock()
	return nil
}

// OpenAdd opens an empty form.
func (c *Controller) OpenAdd() {
	c.mu.Lock()
	c.state.Editing = &Editing{}
	c.mu.Unlock()
}

// OpenEdit opens the form on a copy of tx.
func (c *Controller) OpenEdit(tx core.Transaction) {
	c.mu.Lock()
	c.state.Editing = &Editing{Original: &tx}
	c.mu.Unlock()
}

// Cancel closes the form without saving.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.state.Editing = nil
	c.mu.Unlock()
}

// Submit saves the open form. On success the form closes and the list is
// re-queried. On failure the form stays open and the rows are untouched,
// except when the edited transaction no longer exists: then the form closes
// and the list is refreshed before ErrNotFound is returned.
func (c *Controller) Submit(ctx context.Context, in core.TransactionInput) (string, error) {
	c.mu.Lock()
	ed := c.state.Editing
	c.mu.Unlock()
	if ed == nil {
		return "", ErrNotEditing
	}
	if !c.sess.Authenticated() {
		return "", core.ErrUnauthenticated
	}

	var (
		id  string
		err error
	)
	if ed.Adding() {
		id, err = c.api.Add(ctx, c.sess, in)
	} else {
		id = ed.Original.ID
		err = c.api.Edit(ctx, c.sess, id, in)
	}

	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return "", err
	}

	c.mu.Lock()
	if c.state.Editing == ed {
		c.state.Editing = nil
	}
	c.mu.Unlock()

	if rerr := c.query(ctx); rerr != nil && !errors.Is(rerr, ErrSuperseded) {
		if err != nil {
			return "", errors.Join(err, rerr)
		}
		return id, fmt.Errorf("saved but refresh failed: %w", rerr)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes a transaction and re-queries. A stale id still triggers the
// refresh and then reports core.ErrNotFound.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if !c.sess.Authenticated() {
		return core.ErrUnauthenticated
	}
	err := c.api.Delete(ctx, c.sess, id)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}
	if rerr := c.query(ctx); rerr != nil && !errors.Is(rerr, ErrSuperseded) {
		return errors.Join(err, rerr)
	}
	return err
}

// Snapshot returns the current state and rows, with the analytics report
// computed from the same rows when the analytics view is selected.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:      c.state,
		Rows:       make([]core.Transaction, len(c.rows)),
		Loaded:     c.loaded,
		Err:        c.lastErr,
		Generation: c.gen,
	}
	copy(s.Rows, c.rows)
	if c.state.Editing != nil {
		ed := *c.state.Editing
		s.Editing = &ed
	}
	if c.state.View == ViewAnalytics {
		r := analytics.Summarize(s.Rows)
		s.Report = &r
	}
	return s
}

// query starts a new generation, cancels the one in flight and applies the
// result only if no newer query has started meanwhile.
func (c *Controller) query(ctx context.Context) error {
	if !c.sess.Authenticated() {
		return core.ErrUnauthenticated
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	f := c.state.Filter
	qctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	txs, err := c.api.List(qctx, c.sess, f)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.logger.DebugContext(ctx, "Discarding superseded query",
			"generation", gen, "current", c.gen, log.FieldFrequency, f.Frequency.String(), log.FieldTxType, string(f.Type))
		return ErrSuperseded
	}
	c.cancel = nil
	if err != nil {
		c.lastErr = err
		return err
	}
	c.rows = txs
	c.loaded = true
	c.lastErr = nil
	return nil
}
