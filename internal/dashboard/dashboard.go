// Package dashboard keeps an ordered, paged list of matches in sync with the
// matches collection through a single live subscription.
package dashboard

import (
	"sort"
	"sync"
	"time"

	"scoreboard/internal/lifecycle"
	"scoreboard/internal/model"
	"scoreboard/internal/store"

	"github.com/hashicorp/go-hclog"
)

const DefaultPageSize = 10

type Options struct {
	HideEnded bool
	PageSize  int
	Now       func() time.Time
	Location  *time.Location
	Logger    hclog.Logger
}

// Page is what a dashboard renders after each change
type Page struct {
	Matches   []lifecycle.View `json:"matches"`
	Total     int              `json:"total"`
	HasMore   bool             `json:"hasMore"`
	HideEnded bool             `json:"hideEnded"`
}

// View owns one subscription to the matches collection
type View struct {
	store    *store.Store
	render   func(Page)
	now      func() time.Time
	loc      *time.Location
	log      hclog.Logger
	pageSize int

	mu        sync.Mutex
	matches   []model.Match
	limit     int
	hideEnded bool
	loaded    bool

	renderMu sync.Mutex
	handle   store.Handle
	once     sync.Once
	closed   bool
}

// Open subscribes to the matches collection and renders the first page once
// the initial snapshot arrives. onError receives subscription failures.
func Open(s *store.Store, opts Options, render func(Page), onError func(error)) (*View, error) {
	v := &View{
		store:     s,
		render:    render,
		now:       opts.Now,
		loc:       opts.Location,
		log:       opts.Logger,
		pageSize:  opts.PageSize,
		hideEnded: opts.HideEnded,
	}
	if v.pageSize <= 0 {
		v.pageSize = DefaultPageSize
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.loc == nil {
		v.loc = time.Local
	}
	if v.log == nil {
		v.log = hclog.NewNullLogger()
	}
	if v.render == nil {
		v.render = func(Page) {}
	}
	v.limit = v.pageSize

	h, err := s.Subscribe(store.Path(model.CollectionMatches), v.onSnapshot, onError)
	if err != nil {
		return nil, err
	}
	v.handle = h
	return v, nil
}

func (v *View) onSnapshot(snap store.Snapshot) {
	matches := lifecycle.DecodeAll(snap.Children, v.log)
	v.mu.Lock()
	v.matches = matches
	v.loaded = true
	v.mu.Unlock()
	v.refresh()
}

// LoadMore reveals another page from the current snapshot
func (v *View) LoadMore() {
	v.mu.Lock()
	v.limit += v.pageSize
	v.mu.Unlock()
	v.refresh()
}

// SetHideEnded toggles the ended filter and re-renders
func (v *View) SetHideEnded(hide bool) {
	v.mu.Lock()
	v.hideEnded = hide
	v.mu.Unlock()
	v.refresh()
}

// Page computes the current page without rendering it
func (v *View) Page() Page {
	v.mu.Lock()
	matches := append([]model.Match(nil), v.matches...)
	limit, hide := v.limit, v.hideEnded
	v.mu.Unlock()
	return Build(matches, hide, limit, v.now(), v.loc)
}

func (v *View) refresh() {
	v.renderMu.Lock()
	defer v.renderMu.Unlock()

	v.mu.Lock()
	if v.closed || !v.loaded {
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()
	v.render(v.Page())
}

// Close ends the subscription; further snapshots are not rendered
func (v *View) Close() {
	v.once.Do(func() {
		v.mu.Lock()
		v.closed = true
		v.mu.Unlock()
		v.store.Unsubscribe(v.handle)
	})
}

// Build filters, sorts and truncates matches into a page
func Build(matches []model.Match, hideEnded bool, limit int, now time.Time, loc *time.Location) Page {
	visible := matches[:0:0]
	for _, m := range matches {
		if hideEnded && m.Status == model.StatusEnded {
			continue
		}
		visible = append(visible, m)
	}
	Sort(visible, loc)

	p := Page{Total: len(visible), HideEnded: hideEnded}
	if limit > 0 && len(visible) > limit {
		visible = visible[:limit]
		p.HasMore = true
	}
	p.Matches = make([]lifecycle.View, 0, len(visible))
	for _, m := range visible {
		p.Matches = append(p.Matches, lifecycle.Render(m, now, loc))
	}
	return p
}

// Sort orders upcoming matches before played ones. Upcoming matches run
// soonest first by scheduled time, falling back to creation time; played
// matches run most recent first by match date, falling back to the creation day.
func Sort(matches []model.Match, loc *time.Location) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		ta, tb := tier(a), tier(b)
		if ta != tb {
			return ta < tb
		}
		if ta == 0 {
			ka, kb := upcomingKey(a), upcomingKey(b)
			if ka != kb {
				return ka < kb
			}
		} else {
			ka, kb := playedKey(a, loc), playedKey(b, loc)
			if ka != kb {
				return ka > kb
			}
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
}

func tier(m model.Match) int {
	if m.Status.Played() {
		return 1
	}
	return 0
}

func upcomingKey(m model.Match) int64 {
	if m.ScheduledTime != nil {
		return *m.ScheduledTime
	}
	return m.CreatedAt
}

func playedKey(m model.Match, loc *time.Location) string {
	if m.MatchDate != nil && *m.MatchDate != "" {
		return *m.MatchDate
	}
	return model.FromMillis(m.CreatedAt, loc).Format(model.DateLayout)
}
