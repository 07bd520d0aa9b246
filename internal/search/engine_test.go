package search

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hololog/internal/domain/content"
	domainerr "hololog/internal/domain/errors"
)

// fakeScheduler runs callbacks when Advance moves its clock past their
// deadline.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *fakeScheduler
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, at: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.at <= s.now {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func newTestEngine(t *testing.T, posts []content.Post, opts ...Option) (*Engine, *fakeScheduler) {
	t.Helper()
	e, err := NewEngine(posts, opts...)
	require.NoError(t, err)
	sched := &fakeScheduler{}
	e.sched = sched
	t.Cleanup(e.Close)
	return e, sched
}

func blogPosts() []content.Post {
	return []content.Post{
		post("second-post", "Second Blog Post", "more words", []string{"go"}),
		post("first-post", "First Blog Post", "hello", nil),
	}
}

func TestNewEngineRejectsNegativeDelay(t *testing.T) {
	_, err := NewEngine(nil, WithDebounce(-time.Millisecond))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerr.ErrInvalid))
}

func TestEngineInitialState(t *testing.T) {
	posts := blogPosts()
	e, _ := newTestEngine(t, posts)

	st := e.Snapshot()
	assert.Equal(t, "", st.SearchQuery)
	assert.Equal(t, "", st.DebouncedQuery)
	assert.False(t, st.IsSearching)
	assert.False(t, st.IsSearchVisible)
	assert.Equal(t, posts, st.FilteredPosts)
}

func TestEngineDebounceCommitsFinalValueOnce(t *testing.T) {
	var commits []string
	e, sched := newTestEngine(t, blogPosts(), WithCommitHook(func(st State) {
		commits = append(commits, st.DebouncedQuery)
	}))

	for _, q := range []string{"f", "fi", "fir", "firs", "first"} {
		e.SetQuery(q)
		sched.Advance(100 * time.Millisecond)
		assert.True(t, e.IsSearching(), "after %q", q)
	}
	assert.Equal(t, "first", e.SearchQuery())
	assert.Equal(t, "", e.DebouncedQuery())
	assert.Equal(t, 1, sched.Pending())

	sched.Advance(199 * time.Millisecond)
	assert.True(t, e.IsSearching())
	assert.Empty(t, commits)

	sched.Advance(time.Millisecond)
	assert.False(t, e.IsSearching())
	assert.Equal(t, "first", e.DebouncedQuery())
	assert.Equal(t, []string{"first"}, commits)
	assert.Equal(t, []string{"first-post"}, slugs(e.FilteredPosts()))
}

func TestEngineCustomDelay(t *testing.T) {
	e, sched := newTestEngine(t, blogPosts(), WithDebounce(50*time.Millisecond))

	e.SetQuery("second")
	sched.Advance(49 * time.Millisecond)
	assert.Equal(t, "", e.DebouncedQuery())
	sched.Advance(time.Millisecond)
	assert.Equal(t, "second", e.DebouncedQuery())
	assert.Equal(t, []string{"second-post"}, slugs(e.FilteredPosts()))
}

func TestEngineZeroDelayCommitsImmediately(t *testing.T) {
	e, sched := newTestEngine(t, blogPosts(), WithDebounce(0))

	e.SetQuery("first")
	assert.Equal(t, "first", e.DebouncedQuery())
	assert.False(t, e.IsSearching())
	assert.Equal(t, 0, sched.Pending())
}

func TestEngineStaleTimerDoesNotCommit(t *testing.T) {
	e, sched := newTestEngine(t, blogPosts())

	e.SetQuery("first")
	stale := sched.timers[0]
	e.SetQuery("second")

	// A timer that lost the race to Stop still runs its callback.
	stale.f()
	assert.Equal(t, "", e.DebouncedQuery())

	sched.Advance(DefaultDebounceDelay)
	assert.Equal(t, "second", e.DebouncedQuery())
}

func TestEngineCloseCancelsPendingTimer(t *testing.T) {
	called := false
	e, sched := newTestEngine(t, blogPosts(), WithCommitHook(func(State) { called = true }))

	e.SetQuery("first")
	pending := sched.timers[0]
	e.Close()
	assert.True(t, pending.stopped)
	assert.Equal(t, 0, sched.Pending())

	// even a callback already in flight has no effect
	pending.f()
	sched.Advance(time.Second)
	assert.Equal(t, "", e.DebouncedQuery())
	assert.False(t, called)

	e.SetQuery("second")
	assert.Equal(t, "first", e.SearchQuery())
	assert.NotPanics(t, e.Close)
}

func TestEngineFlush(t *testing.T) {
	var commits []string
	e, sched := newTestEngine(t, blogPosts(), WithCommitHook(func(st State) {
		commits = append(commits, st.DebouncedQuery)
	}))

	e.Flush()
	assert.Empty(t, commits, "nothing pending")

	e.SetQuery("second")
	pending := sched.timers[0]
	e.Flush()
	assert.Equal(t, "second", e.DebouncedQuery())
	assert.False(t, e.IsSearching())
	assert.Equal(t, 0, sched.Pending())

	// the superseded timer callback must not commit twice
	pending.f()
	assert.Equal(t, []string{"second"}, commits)
}

func TestEngineToggleAndClear(t *testing.T) {
	e, sched := newTestEngine(t, blogPosts())

	e.ToggleSearchPanel()
	assert.True(t, e.IsSearchVisible())

	e.OnInputChange(InputEvent{Value: "first"})
	sched.Advance(DefaultDebounceDelay)
	assert.Len(t, e.FilteredPosts(), 1)

	e.ClearSearch()
	assert.Equal(t, "", e.SearchQuery())
	assert.True(t, e.IsSearching())
	assert.True(t, e.IsSearchVisible())

	sched.Advance(DefaultDebounceDelay)
	assert.False(t, e.IsSearching())
	assert.Len(t, e.FilteredPosts(), 2)

	e.ToggleSearchPanel()
	assert.False(t, e.IsSearchVisible())
	assert.Equal(t, "", e.SearchQuery())
}

func TestEngineMemoisesFilteredView(t *testing.T) {
	e, sched := newTestEngine(t, blogPosts())

	e.SetQuery("blog")
	sched.Advance(DefaultDebounceDelay)
	first := e.FilteredPosts()
	require.Len(t, first, 2)

	// raw query changes do not recompute until committed
	e.SetQuery("blog post")
	second := e.FilteredPosts()
	assert.Same(t, &first[0], &second[0])

	e.SetPosts([]content.Post{post("third", "Third Blog Post", "", nil)})
	third := e.FilteredPosts()
	assert.Equal(t, []string{"third"}, slugs(third))
}

func TestEngineCaseSensitiveOption(t *testing.T) {
	e, sched := newTestEngine(t, blogPosts(), WithCaseSensitive(true))

	e.SetQuery("blog")
	sched.Advance(DefaultDebounceDelay)
	assert.Empty(t, e.FilteredPosts())

	e.SetQuery("First")
	sched.Advance(DefaultDebounceDelay)
	assert.Equal(t, []string{"first-post"}, slugs(e.FilteredPosts()))
}

func TestEngineRealTimer(t *testing.T) {
	done := make(chan State, 1)
	e, err := NewEngine(blogPosts(),
		WithDebounce(10*time.Millisecond),
		WithCommitHook(func(st State) { done <- st }),
	)
	require.NoError(t, err)
	defer e.Close()

	e.SetQuery("go")
	select {
	case st := <-done:
		assert.Equal(t, "go", st.DebouncedQuery)
		assert.False(t, st.IsSearching)
		assert.Equal(t, []string{"second-post"}, slugs(st.FilteredPosts))
	case <-time.After(2 * time.Second):
		t.Fatal("debounced commit did not happen")
	}
}

// slowHook signals when it starts and records when it finishes.
type slowHook struct {
	started  chan struct{}
	finished atomic.Bool
	delay    time.Duration
}

func newSlowHook(delay time.Duration) *slowHook {
	return &slowHook{started: make(chan struct{}, 1), delay: delay}
}

func (h *slowHook) run(State) {
	select {
	case h.started <- struct{}{}:
	default:
	}
	time.Sleep(h.delay)
	h.finished.Store(true)
}

func (h *slowHook) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-h.started:
	case <-time.After(2 * time.Second):
		t.Fatal("hook never started")
	}
}

func TestEngineCloseWaitsForRunningHook(t *testing.T) {
	hook := newSlowHook(50 * time.Millisecond)
	e, err := NewEngine(blogPosts(), WithDebounce(time.Millisecond), WithCommitHook(hook.run))
	require.NoError(t, err)

	e.SetQuery("go")
	hook.waitStarted(t)
	e.Close()
	assert.True(t, hook.finished.Load(), "hook still running after Close returned")
}

func TestEngineFlushWaitsForFiredCommit(t *testing.T) {
	hook := newSlowHook(50 * time.Millisecond)
	e, err := NewEngine(blogPosts(), WithDebounce(time.Millisecond), WithCommitHook(hook.run))
	require.NoError(t, err)
	defer e.Close()

	e.SetQuery("go")
	hook.waitStarted(t)
	e.Flush()
	assert.True(t, hook.finished.Load(), "hook still running after Flush returned")
}

func TestEngineHookMayCloseEngine(t *testing.T) {
	var e *Engine
	var commits []string
	e, sched := newTestEngine(t, blogPosts(), WithCommitHook(func(st State) {
		commits = append(commits, st.DebouncedQuery)
		e.Close()
		e.Flush()
	}))

	e.SetQuery("first")
	sched.Advance(DefaultDebounceDelay)
	assert.Equal(t, []string{"first"}, commits)

	e.SetQuery("second")
	sched.Advance(DefaultDebounceDelay)
	assert.Equal(t, []string{"first"}, commits)
	assert.Equal(t, "first", e.SearchQuery())
}

func TestEngineHookMayUpdateQuery(t *testing.T) {
	var e *Engine
	var commits []string
	e, _ = newTestEngine(t, blogPosts(), WithDebounce(0), WithCommitHook(func(st State) {
		commits = append(commits, st.DebouncedQuery)
		if st.DebouncedQuery == "first" {
			e.SetQuery("second")
			e.Flush()
		}
	}))

	e.SetQuery("first")
	assert.Equal(t, []string{"first", "second"}, commits)
	assert.Equal(t, "second", e.DebouncedQuery())
	assert.Equal(t, []string{"second-post"}, slugs(e.FilteredPosts()))
}
