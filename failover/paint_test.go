package failover

import (
	"strings"
	"testing"
)

func TestPaintBuildsSubstitute(t *testing.T) {
	t.Parallel()
	doc := NewDocument()
	err := Paint(doc, PaintOptions{
		Reason:        ReasonLowPerformance,
		ResumeURL:     "/cv.pdf",
		GithubURL:     "https://github.com/example",
		PosterDataURI: "data:image/jpeg;base64,AAAA",
	})
	if err != nil {
		t.Fatalf("Paint: %v", err)
	}
	n := doc.Container()
	if n == nil {
		t.Fatal("no container painted")
	}
	if got := getAttr(n, ReasonAttr); got != string(ReasonLowPerformance) {
		t.Fatalf("reason attr = %q", got)
	}
	out, err := RenderContainerHTML(doc)
	if err != nil {
		t.Fatalf("RenderContainerHTML: %v", err)
	}
	for _, want := range []string{
		MessageFor(ReasonLowPerformance),
		"mode=immersive",
		"disablePerformanceFailover=1",
		"/cv.pdf",
		"https://github.com/example",
		"data:image/jpeg;base64,AAAA",
		"fallback-message",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered HTML missing %q:\n%s", want, out)
		}
	}
	// Baseline styles are inlined onto the matching nodes.
	if !strings.Contains(out, `style=`) || !strings.Contains(out, "Georgia") {
		t.Fatalf("expected inlined style attributes:\n%s", out)
	}
}

func TestPaintDefaults(t *testing.T) {
	t.Parallel()
	doc := NewDocument()
	if err := Paint(doc, PaintOptions{}); err != nil {
		t.Fatalf("Paint: %v", err)
	}
	// Invalid reason falls back to the manual explanation.
	if got := containerReason(doc.Container()); got != string(ReasonManual) {
		t.Fatalf("reason = %q, want manual", got)
	}
	out, err := RenderContainerHTML(doc)
	if err != nil {
		t.Fatalf("RenderContainerHTML: %v", err)
	}
	if !strings.Contains(out, "mode=immersive") || !strings.Contains(out, "disablePerformanceFailover=1") {
		t.Fatalf("missing default immersive link:\n%s", out)
	}
	if strings.Contains(out, "fallback-poster") || strings.Contains(out, "Resume") {
		t.Fatalf("optional content rendered without options:\n%s", out)
	}
}

func TestPaintNilDocument(t *testing.T) {
	t.Parallel()
	if err := Paint(nil, PaintOptions{}); err == nil {
		t.Fatal("expected error for nil document")
	}
}

func TestRenderContainerHTMLBeforePaint(t *testing.T) {
	t.Parallel()
	if _, err := RenderContainerHTML(NewDocument()); err == nil {
		t.Fatal("expected error before any paint")
	}
}

func TestStampContainerReason(t *testing.T) {
	t.Parallel()
	doc := NewDocument()
	if err := Paint(doc, PaintOptions{Reason: ReasonManual}); err != nil {
		t.Fatalf("Paint: %v", err)
	}
	doc.SetContentReason(ReasonConsoleError)
	if got := containerReason(doc.Container()); got != string(ReasonConsoleError) {
		t.Fatalf("reason after restamp = %q", got)
	}
}
