package failover

import "sync"

// AnnouncerStrings is the replaceable localized text set.
type AnnouncerStrings struct {
	// Messages overrides the per-reason announcement text.
	Messages map[Reason]string
	// ImmersiveReady is written when the 3D experience comes up.
	ImmersiveReady string
}

// DefaultAnnouncerStrings returns the stock English text.
func DefaultAnnouncerStrings() AnnouncerStrings {
	return AnnouncerStrings{
		ImmersiveReady: "3D experience ready.",
	}
}

// Announcer writes mode-change explanations to a document's accessible
// live region, deduplicated on the last written (reason, text) pair and
// sequence-numbered. One announcer exists per document; use ForDocument.
//
// Two watchers keep the announcer correct without every call site invoking
// it directly: one follows the document-root mode/reason markers, the
// other follows the painted fallback content itself. Both ride the
// document's batched notifier, so nothing announces synchronously inside a
// mutation; tests flush the notifier before asserting.
type Announcer struct {
	mu         sync.Mutex
	doc        *Document
	strings    AnnouncerStrings
	lastReason Reason
	lastText   string
	hasLast    bool
	lastSynced Reason
	cancels    []func()
}

var (
	announcerMu  sync.Mutex
	announcerReg = make(map[*Document]*Announcer)
)

// ForDocument returns the document's announcer, creating and wiring it on
// first use.
func ForDocument(doc *Document) *Announcer {
	announcerMu.Lock()
	defer announcerMu.Unlock()
	if a, ok := announcerReg[doc]; ok {
		return a
	}
	a := &Announcer{doc: doc, strings: DefaultAnnouncerStrings()}
	a.cancels = append(a.cancels,
		doc.Notifier().Watch(a.watchRoot),
		doc.Notifier().Watch(a.watchContent),
	)
	announcerReg[doc] = a
	return a
}

// ReleaseAnnouncer detaches and forgets the document's announcer.
func ReleaseAnnouncer(doc *Document) {
	announcerMu.Lock()
	a, ok := announcerReg[doc]
	delete(announcerReg, doc)
	announcerMu.Unlock()
	if ok {
		for _, cancel := range a.cancels {
			cancel()
		}
	}
}

// ResetAnnouncers tears down every registered announcer. Test isolation
// hook.
func ResetAnnouncers() {
	announcerMu.Lock()
	reg := announcerReg
	announcerReg = make(map[*Document]*Announcer)
	announcerMu.Unlock()
	for _, a := range reg {
		for _, cancel := range a.cancels {
			cancel()
		}
	}
}

// SetStrings swaps the localized text set.
func (a *Announcer) SetStrings(s AnnouncerStrings) {
	a.mu.Lock()
	a.strings = s
	a.mu.Unlock()
}

// AnnounceFallback writes the explanation for reason to the live region.
// The write is skipped when the immediately preceding announcement had the
// same reason and produced the same text, unless force is set.
func (a *Announcer) AnnounceFallback(reason Reason, force bool) {
	text := a.messageFor(reason)
	a.mu.Lock()
	if !force && a.hasLast && a.lastReason == reason && a.lastText == text {
		a.mu.Unlock()
		return
	}
	a.lastReason = reason
	a.lastText = text
	a.hasLast = true
	doc := a.doc
	a.mu.Unlock()
	doc.Announce(text)
}

// AnnounceImmersiveReady always writes the immersive-ready message and
// clears the remembered fallback reason.
func (a *Announcer) AnnounceImmersiveReady() {
	a.mu.Lock()
	text := a.strings.ImmersiveReady
	if text == "" {
		text = DefaultAnnouncerStrings().ImmersiveReady
	}
	a.hasLast = false
	a.lastReason = ""
	a.lastText = text
	doc := a.doc
	a.mu.Unlock()
	doc.Announce(text)
}

func (a *Announcer) messageFor(reason Reason) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.strings.Messages != nil {
		if msg, ok := a.strings.Messages[reason]; ok {
			return msg
		}
		if msg, ok := a.strings.Messages[ReasonManual]; ok && !reason.Valid() {
			return msg
		}
	}
	return MessageFor(reason)
}

// watchRoot follows the document-root mode/reason markers. A batch that
// also carries a freshly painted fallback subtree belongs to the content
// watcher; announcing here too would write the same explanation twice for
// one transition.
func (a *Announcer) watchRoot(batch []Change) {
	var mode, reason string
	var modeChanged, reasonChanged bool
	for _, ch := range batch {
		switch ch.Kind {
		case ChangeContentPainted:
			if _, ok := ParseReason(ch.Value); ok {
				return
			}
		case ChangeMode:
			mode, modeChanged = ch.Value, true
		case ChangeReason:
			reason, reasonChanged = ch.Value, true
		}
	}
	if modeChanged && mode == DocModeImmersive {
		a.AnnounceImmersiveReady()
		return
	}
	if reasonChanged {
		if r, ok := ParseReason(reason); ok && a.doc.Mode() == DocModeFallback {
			a.AnnounceFallback(r, false)
		}
		return
	}
	if modeChanged && mode == DocModeFallback {
		if r := a.doc.ReasonMarker(); r.Valid() {
			a.AnnounceFallback(r, false)
		}
	}
}

// watchContent follows the painted fallback content: its own reason marker
// attribute and the insertion of a freshly painted subtree. On a valid
// change it updates the document-root markers and force-re-announces; the
// last-synced guard keeps the two watchers from double-announcing.
func (a *Announcer) watchContent(batch []Change) {
	var reason Reason
	var painted bool
	for _, ch := range batch {
		switch ch.Kind {
		case ChangeContentPainted:
			if r, ok := ParseReason(ch.Value); ok {
				reason, painted = r, true
			}
		case ChangeContentReason:
			if r, ok := ParseReason(ch.Value); ok {
				reason = r
			}
		}
	}
	if reason == "" {
		return
	}
	a.mu.Lock()
	synced := a.lastSynced
	a.mu.Unlock()
	if !painted && reason == synced {
		return
	}
	a.mu.Lock()
	a.lastSynced = reason
	a.mu.Unlock()
	a.doc.SetMode(DocModeFallback)
	a.doc.SetReasonMarker(reason)
	a.AnnounceFallback(reason, true)
}
