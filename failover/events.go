package failover

import "sync"

// Well-known event names carried on the bus.
const (
	// EventFallback announces the one-time transition to the text
	// substitute. Payload: FallbackEvent.
	EventFallback = "atrium:fallback"
	// EventBudgetExceeded is the default name for the error-budget
	// broadcast. Payload: BudgetExceededDetail.
	EventBudgetExceeded = "atrium:console-budget-exceeded"
	// EventRuntimeError and EventUnhandledRejection carry client-reported
	// uncaught exceptions and rejected promises. Payload: string detail.
	EventRuntimeError       = "runtime:error"
	EventUnhandledRejection = "runtime:unhandledrejection"
)

// Event is a broadcast notification dispatched on a Bus.
type Event struct {
	Name    string
	Payload any
}

type busSub struct {
	id int
	fn func(Event)
}

// Bus fans events out to subscribers synchronously, in subscription order.
// It is the generalized broadcast target from the browser incarnation of
// this system, where events were dispatched on the global scope.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]busSub
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]busSub)}
}

// Subscribe registers fn for events named name and returns a cancel func.
func (b *Bus) Subscribe(name string, fn func(Event)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], busSub{id: id, fn: fn})
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[name]
		for i, s := range list {
			if s.id == id {
				b.subs[name] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Dispatch delivers ev to every subscriber before returning.
func (b *Bus) Dispatch(ev Event) {
	b.mu.Lock()
	list := append([]busSub(nil), b.subs[ev.Name]...)
	b.mu.Unlock()
	for _, s := range list {
		s.fn(ev)
	}
}

// ChangeKind identifies what part of the shared mode state changed.
type ChangeKind int

const (
	// ChangeMode: the document-root mode marker changed.
	ChangeMode ChangeKind = iota
	// ChangeReason: the document-root fallback-reason marker changed.
	ChangeReason
	// ChangeContentReason: the painted content's own reason marker changed.
	ChangeContentReason
	// ChangeContentPainted: a freshly painted fallback subtree replaced
	// the container's content.
	ChangeContentPainted
)

// Change is one batched state-change record.
type Change struct {
	Kind  ChangeKind
	Value string
}

type notifierWatcher struct {
	id int
	fn func([]Change)
}

// Notifier batches change records and delivers them to watchers on Flush,
// mirroring the asynchronous, coalesced delivery of the original
// mutation-observer wiring. Publishing never delivers synchronously; tests
// and the host loop flush once per tick.
type Notifier struct {
	mu       sync.Mutex
	pending  []Change
	nextID   int
	watchers []notifierWatcher
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// Watch registers a batch consumer and returns a cancel func.
func (n *Notifier) Watch(fn func([]Change)) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.watchers = append(n.watchers, notifierWatcher{id: id, fn: fn})
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, w := range n.watchers {
			if w.id == id {
				n.watchers = append(n.watchers[:i:i], n.watchers[i+1:]...)
				return
			}
		}
	}
}

// Publish queues one change for the next flush.
func (n *Notifier) Publish(ch Change) {
	n.mu.Lock()
	n.pending = append(n.pending, ch)
	n.mu.Unlock()
}

// Flush delivers every pending change to every watcher. Changes published
// while delivering are picked up in the same call, so a watcher that reacts
// by publishing more changes still settles within one flush.
func (n *Notifier) Flush() {
	// Bounded so a watcher republishing on every delivery cannot spin forever.
	for i := 0; i < 8; i++ {
		n.mu.Lock()
		batch := n.pending
		n.pending = nil
		watchers := append([]notifierWatcher(nil), n.watchers...)
		n.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, w := range watchers {
			w.fn(batch)
		}
	}
}
