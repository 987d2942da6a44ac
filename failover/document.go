package failover

import (
	"sync"

	"golang.org/x/net/html"
)

// Application modes carried on the document-root marker.
const (
	DocModeLoading   = "loading"
	DocModeImmersive = "immersive"
	DocModeFallback  = "fallback"
)

// Document is the per-session presentation surface: the mode and
// fallback-reason markers the application shell maintains, the container
// the fallback painter paints into, and the accessible live region. Every
// marker mutation is published to the document's change notifier; delivery
// is batched (see Notifier), never synchronous inside the mutation.
type Document struct {
	mu        sync.Mutex
	notifier  *Notifier
	mode      string
	reason    Reason
	container *html.Node
	liveText  string
	liveSeq   int
}

func NewDocument() *Document {
	return &Document{
		notifier: NewNotifier(),
		mode:     DocModeLoading,
	}
}

// Notifier exposes the document's batched change feed.
func (d *Document) Notifier() *Notifier { return d.notifier }

// Mode returns the current document-root mode marker.
func (d *Document) Mode() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// SetMode updates the mode marker and queues a change notification.
func (d *Document) SetMode(mode string) {
	d.mu.Lock()
	if d.mode == mode {
		d.mu.Unlock()
		return
	}
	d.mode = mode
	d.mu.Unlock()
	d.notifier.Publish(Change{Kind: ChangeMode, Value: mode})
}

// ReasonMarker returns the document-root fallback-reason marker.
func (d *Document) ReasonMarker() Reason {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reason
}

// SetReasonMarker updates the reason marker and queues a change.
func (d *Document) SetReasonMarker(r Reason) {
	d.mu.Lock()
	if d.reason == r {
		d.mu.Unlock()
		return
	}
	d.reason = r
	d.mu.Unlock()
	d.notifier.Publish(Change{Kind: ChangeReason, Value: string(r)})
}

// Container returns the painted fallback subtree, or nil before any paint.
func (d *Document) Container() *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.container
}

// SetContainer installs a freshly painted fallback subtree and queues a
// content-painted change carrying the subtree's reason marker.
func (d *Document) SetContainer(n *html.Node) {
	d.mu.Lock()
	d.container = n
	d.mu.Unlock()
	d.notifier.Publish(Change{Kind: ChangeContentPainted, Value: containerReason(n)})
}

// SetContentReason rewrites the reason marker on the painted subtree, the
// way regenerated content would, and queues a content-attribute change.
func (d *Document) SetContentReason(r Reason) {
	d.mu.Lock()
	n := d.container
	d.mu.Unlock()
	if n == nil {
		return
	}
	stampContainerReason(n, r)
	d.notifier.Publish(Change{Kind: ChangeContentReason, Value: string(r)})
}

// Announce writes text to the live region and bumps the sequence counter.
// Consumers detect "re-announced with identical text" via the sequence.
func (d *Document) Announce(text string) {
	d.mu.Lock()
	d.liveText = text
	d.liveSeq++
	d.mu.Unlock()
}

// LiveText returns the last text written to the live region.
func (d *Document) LiveText() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveText
}

// LiveSequence returns the monotonic announcement counter.
func (d *Document) LiveSequence() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveSeq
}
