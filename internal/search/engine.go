package search

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"time"

	"hololog/internal/domain/content"
	domainerr "hololog/internal/domain/errors"
)

const DefaultDebounceDelay = 300 * time.Millisecond

// State is a point-in-time view of an Engine.
type State struct {
	SearchQuery     string
	DebouncedQuery  string
	FilteredPosts   []content.Post
	IsSearchVisible bool
	IsSearching     bool
}

// InputEvent is the change notification of a text input.
type InputEvent struct {
	Value string
}

type Option func(*Engine)

// WithDebounce sets the delay an input must stay unchanged before it is
// committed. A negative delay makes NewEngine fail.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

func WithCaseSensitive(v bool) Option {
	return func(e *Engine) { e.caseSensitive = v }
}

// WithCommitHook registers fn to run after each debounced commit. Hooks run
// one at a time, in commit order, outside the engine lock. A hook may call
// back into the engine: commits it causes are delivered after it returns,
// and Close or Flush called from a hook do not wait for it.
func WithCommitHook(fn func(State)) Option {
	return func(e *Engine) { e.onCommit = fn }
}

// timer and scheduler let tests drive the debounce clock.
type timer interface {
	Stop() bool
}

type scheduler interface {
	AfterFunc(d time.Duration, f func()) timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Engine holds live search state over a fixed post collection. The raw
// query changes on every SetQuery; the debounced query follows it once the
// input has been stable for the configured delay. The filtered view is
// recomputed only when the debounced query or the collection changes.
type Engine struct {
	delay         time.Duration
	caseSensitive bool
	onCommit      func(State)
	sched         scheduler

	mu       sync.Mutex
	posts    []content.Post
	version  uint64
	raw      string
	debounce string
	visible  bool
	pending  timer
	gen      uint64
	closed   bool

	memoQuery   string
	memoVersion uint64
	memoValid   bool
	memo        []content.Post

	// hook delivery, guarded by mu
	undelivered int
	hookRunning bool
	hookG       uint64
	hookQueue   []State
	hookIdle    *sync.Cond
}

func NewEngine(posts []content.Post, opts ...Option) (*Engine, error) {
	e := &Engine{
		delay: DefaultDebounceDelay,
		sched: realScheduler{},
		posts: posts,
	}
	e.hookIdle = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	if e.delay < 0 {
		return nil, domainerr.Invalid("search.debounce", "must not be negative")
	}
	return e, nil
}

// SetQuery records q as the raw query and restarts the debounce timer.
func (e *Engine) SetQuery(q string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.raw = q
	e.gen++
	gen := e.gen
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
	if e.delay == 0 {
		committed := e.commitLocked(gen)
		e.mu.Unlock()
		if committed {
			e.deliver()
		}
		return
	}
	e.pending = e.sched.AfterFunc(e.delay, func() { e.fire(gen) })
	e.mu.Unlock()
}

// OnInputChange adapts an input change notification to SetQuery.
func (e *Engine) OnInputChange(ev InputEvent) {
	e.SetQuery(ev.Value)
}

// ToggleSearchPanel flips search panel visibility; queries are untouched.
func (e *Engine) ToggleSearchPanel() {
	e.mu.Lock()
	e.visible = !e.visible
	e.mu.Unlock()
}

// ClearSearch resets the raw query to empty. The debounced query follows
// after the usual delay. Panel visibility is untouched.
func (e *Engine) ClearSearch() {
	e.SetQuery("")
}

// SetPosts replaces the collection. The filtered view is recomputed on the
// next read.
func (e *Engine) SetPosts(posts []content.Post) {
	e.mu.Lock()
	e.posts = posts
	e.version++
	e.mu.Unlock()
}

// Flush commits a pending raw query without waiting for the delay and
// returns once every commit so far has reached the commit hook.
func (e *Engine) Flush() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.pending != nil {
		e.pending.Stop()
		e.gen++
		if e.commitLocked(e.gen) {
			e.mu.Unlock()
			e.deliver()
			e.mu.Lock()
		}
	}
	e.waitHooksLocked()
	e.mu.Unlock()
}

func (e *Engine) fire(gen uint64) {
	e.mu.Lock()
	committed := e.commitLocked(gen)
	e.mu.Unlock()
	if committed {
		e.deliver()
	}
}

// commitLocked publishes the raw query when gen is still current. A timer
// superseded by a later SetQuery, or one firing after Close, commits nothing.
// The committed state is queued for the hook; a caller that gets true must
// call deliver after releasing the lock.
func (e *Engine) commitLocked(gen uint64) bool {
	if e.closed || gen != e.gen {
		return false
	}
	e.pending = nil
	e.debounce = e.raw
	if e.onCommit != nil {
		e.hookQueue = append(e.hookQueue, e.snapshotLocked())
		e.undelivered++
	}
	return true
}

// deliver runs the commit hook over queued states. The goroutine that finds
// no hook running drains the queue; a commit made from inside a hook is
// picked up by that same loop once the hook returns.
func (e *Engine) deliver() {
	if e.onCommit == nil {
		return
	}
	g := goid()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hookRunning && e.hookG == g {
		return
	}
	for e.hookRunning {
		e.hookIdle.Wait()
	}
	if len(e.hookQueue) == 0 {
		// drained by the previous deliverer
		return
	}

	e.hookRunning, e.hookG = true, g
	defer func() {
		e.undelivered -= len(e.hookQueue)
		e.hookQueue = nil
		e.hookRunning, e.hookG = false, 0
		e.hookIdle.Broadcast()
	}()
	for len(e.hookQueue) > 0 {
		next := e.hookQueue[0]
		e.hookQueue = e.hookQueue[1:]
		e.undelivered--
		if !e.closed {
			e.runHook(next)
		}
	}
}

// runHook calls the hook with mu released and reacquires it even if the
// hook panics.
func (e *Engine) runHook(st State) {
	e.mu.Unlock()
	defer e.mu.Lock()
	e.onCommit(st)
}

// waitHooksLocked blocks until every commit has been through the hook. From
// inside a hook it returns at once.
func (e *Engine) waitHooksLocked() {
	if e.hookRunning && e.hookG == goid() {
		return
	}
	for e.undelivered > 0 || e.hookRunning {
		e.hookIdle.Wait()
	}
}

// goid returns the id of the calling goroutine. It only serves to tell a
// hook calling back into the engine from another goroutine.
func goid() uint64 {
	var buf [64]byte
	b := bytes.TrimPrefix(buf[:runtime.Stack(buf[:], false)], []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

func (e *Engine) SearchQuery() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.raw
}

func (e *Engine) DebouncedQuery() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.debounce
}

func (e *Engine) IsSearchVisible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible
}

// IsSearching reports whether the raw query has not been committed yet.
func (e *Engine) IsSearching() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.raw != e.debounce
}

// FilteredPosts returns the collection filtered by the debounced query.
// The returned slice is shared between calls and must not be modified.
func (e *Engine) FilteredPosts() []content.Post {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filteredLocked()
}

func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() State {
	return State{
		SearchQuery:     e.raw,
		DebouncedQuery:  e.debounce,
		FilteredPosts:   e.filteredLocked(),
		IsSearchVisible: e.visible,
		IsSearching:     e.raw != e.debounce,
	}
}

func (e *Engine) filteredLocked() []content.Post {
	if e.memoValid && e.memoQuery == e.debounce && e.memoVersion == e.version {
		return e.memo
	}
	e.memo = Filter(e.posts, e.debounce, e.caseSensitive)
	e.memoQuery = e.debounce
	e.memoVersion = e.version
	e.memoValid = true
	return e.memo
}

// Close cancels any pending commit and waits for a hook that is already
// running. After Close returns the engine ignores updates and never invokes
// the commit hook again. Close is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.gen++
		if e.pending != nil {
			e.pending.Stop()
			e.pending = nil
		}
	}
	e.waitHooksLocked()
}
