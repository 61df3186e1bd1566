// Package selection owns the single "currently focused county" shared by the
// map, the detail panel and the ranked list.
package selection

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lox/firerisk/internal/logging"
	"github.com/lox/firerisk/internal/metrics"
	"github.com/lox/firerisk/internal/models"
)

// Phase is the coordinator's lifecycle state.
type Phase int

const (
	// Uninitialized means no data has loaded and nothing is focused.
	Uninitialized Phase = iota
	// Idle is the steady state with an active county.
	Idle
)

func (p Phase) String() string {
	if p == Idle {
		return "idle"
	}
	return "uninitialized"
}

// HoverPolicy decides how hover interacts with an explicit click.
type HoverPolicy int

const (
	// HoverWins lets every resolvable hover move the focus, even after a click.
	HoverWins HoverPolicy = iota
	// ClickPins keeps a clicked county focused until ClearPin; hovers only
	// update the soft layer meanwhile.
	ClickPins
)

// ParseHoverPolicy accepts "hover" (or empty) and "click".
func ParseHoverPolicy(s string) (HoverPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hover", "hover-wins":
		return HoverWins, true
	case "click", "pin", "click-pins":
		return ClickPins, true
	default:
		return HoverWins, false
	}
}

func (p HoverPolicy) String() string {
	if p == ClickPins {
		return "click"
	}
	return "hover"
}

// Source names the event that caused a change.
type Source string

const (
	SourceData   Source = "data"
	SourceHover  Source = "hover"
	SourceSelect Source = "select"
	SourceClear  Source = "clear"
)

// State is a copy of the coordinator's selection.
type State struct {
	ActiveCounty string `json:"active_county"`
	Hovered      string `json:"hovered,omitempty"`
	Pinned       string `json:"pinned,omitempty"`
	Phase        Phase  `json:"-"`
	Version      uint64 `json:"version"`
}

// Change describes one logical change of the active county.
type Change struct {
	From   string
	To     string
	Source Source
	State  State
}

// Resolver finds a county by exact name. datastore.FireDataStore implements it.
type Resolver interface {
	Lookup(county string) (models.CountyRiskRecord, bool)
}

// Coordinator is the one writer of the selection. Its methods are safe to call
// from any goroutine; the last write wins.
type Coordinator struct {
	resolver Resolver
	policy   HoverPolicy
	log      *logrus.Entry

	mu        sync.Mutex
	state     State
	listeners []func(Change)
}

// New creates an uninitialized coordinator.
func New(resolver Resolver, policy HoverPolicy) *Coordinator {
	return &Coordinator{
		resolver: resolver,
		policy:   policy,
		log:      logging.For("selection"),
	}
}

// Policy returns the hover policy.
func (c *Coordinator) Policy() HoverPolicy {
	return c.policy
}

// State returns the current selection.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn to run after every logical change. Listeners run on the
// caller's goroutine once the coordinator's lock is released.
func (c *Coordinator) Subscribe(fn func(Change)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// OnDataLoaded focuses the first record when nothing is focused yet. Later loads
// leave the selection alone, even if the active county disappeared.
func (c *Coordinator) OnDataLoaded(records []models.CountyRiskRecord) {
	c.update(SourceData, func(s *State) {
		if s.Phase != Uninitialized || len(records) == 0 {
			return
		}
		s.Phase = Idle
		s.ActiveCounty = records[0].County
	})
}

// OnHover moves the focus to county when it resolves. An empty or unknown name
// is ignored so that leaving the map never blanks the detail panel.
func (c *Coordinator) OnHover(county string) {
	if !c.resolves(county) {
		return
	}
	c.update(SourceHover, func(s *State) {
		s.Hovered = county
		if c.policy == ClickPins && s.Pinned != "" {
			return
		}
		s.Phase = Idle
		s.ActiveCounty = county
	})
}

// OnSelect focuses county as an explicit choice. Under ClickPins it also pins
// the county against later hovers.
func (c *Coordinator) OnSelect(county string) {
	if !c.resolves(county) {
		return
	}
	c.update(SourceSelect, func(s *State) {
		s.Pinned = county
		s.Phase = Idle
		s.ActiveCounty = county
	})
}

// ClearPin drops the sticky focus. Under ClickPins the most recent hover, if
// any, takes over.
func (c *Coordinator) ClearPin() {
	c.update(SourceClear, func(s *State) {
		s.Pinned = ""
		if c.policy == ClickPins && s.Hovered != "" && c.resolves(s.Hovered) {
			s.ActiveCounty = s.Hovered
		}
	})
}

func (c *Coordinator) resolves(county string) bool {
	if county == "" || c.resolver == nil {
		return false
	}
	_, ok := c.resolver.Lookup(county)
	return ok
}

// update applies fn under the lock. Only a change of the active county bumps the
// version and notifies listeners; soft-layer bookkeeping is silent.
func (c *Coordinator) update(src Source, fn func(*State)) {
	c.mu.Lock()
	before := c.state
	next := before
	fn(&next)

	if next.ActiveCounty == before.ActiveCounty && next.Phase == before.Phase {
		c.state = next
		c.mu.Unlock()
		return
	}

	next.Version = before.Version + 1
	c.state = next
	listeners := append([]func(Change){}, c.listeners...)
	c.mu.Unlock()

	metrics.SelectionChangesTotal.WithLabelValues(string(src)).Inc()
	c.log.WithFields(logrus.Fields{
		"from":   before.ActiveCounty,
		"to":     next.ActiveCounty,
		"source": src,
	}).Debug("selection changed")

	change := Change{From: before.ActiveCounty, To: next.ActiveCounty, Source: src, State: next}
	for _, fn := range listeners {
		fn(change)
	}
}
