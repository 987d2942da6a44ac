package failover

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	cssast "github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ReasonAttr marks the painted fallback content with the reason that
// produced it. The announcer's content watcher keys off this attribute.
const ReasonAttr = "data-fallback-reason"

// PaintOptions parameterize one paint of the text substitute.
type PaintOptions struct {
	Reason       Reason
	ImmersiveURL string
	ResumeURL    string
	GithubURL    string
	// PosterDataURI, when set, embeds a still of the immersive scene.
	PosterDataURI string
}

// Paint builds the text substitute subtree, inlines the baseline styles and
// installs it as the document's container. Whatever the reason, the result
// always carries the explanation text and a link back to immersive mode.
func Paint(doc *Document, opts PaintOptions) error {
	if doc == nil {
		return fmt.Errorf("paint: nil document")
	}
	reason := opts.Reason
	if !reason.Valid() {
		reason = ReasonManual
	}
	immersive := opts.ImmersiveURL
	if immersive == "" {
		immersive = ImmersiveURL("/")
	}

	section := elem(atom.Section, "section",
		attr("class", "fallback"),
		attr(ReasonAttr, string(reason)))

	h1 := elem(atom.H1, "h1")
	h1.AppendChild(textNode("Portfolio — text version"))
	section.AppendChild(h1)

	msg := elem(atom.P, "p", attr("class", "fallback-message"))
	msg.AppendChild(textNode(MessageFor(reason)))
	section.AppendChild(msg)

	if opts.PosterDataURI != "" {
		img := elem(atom.Img, "img",
			attr("class", "fallback-poster"),
			attr("src", opts.PosterDataURI),
			attr("alt", "Still frame of the 3D experience"))
		section.AppendChild(img)
	}

	nav := elem(atom.Nav, "nav", attr("class", "fallback-links"))
	nav.AppendChild(link(immersive, "Enter the 3D experience", "fallback-immersive"))
	if opts.ResumeURL != "" {
		nav.AppendChild(link(opts.ResumeURL, "Resume", ""))
	}
	if opts.GithubURL != "" {
		nav.AppendChild(link(opts.GithubURL, "GitHub", ""))
	}
	section.AppendChild(nav)

	// Unstyled text still beats no text: styling failure never blocks the paint.
	_ = inlineStyles(section, baselineCSS)

	doc.SetContainer(section)
	return nil
}

// RenderContainerHTML serializes the painted subtree.
func RenderContainerHTML(doc *Document) (string, error) {
	n := doc.Container()
	if n == nil {
		return "", fmt.Errorf("render: nothing painted")
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const baselineCSS = `
.fallback { font-family: Georgia, serif; max-width: 42rem; margin: 0 auto; padding: 2rem 1rem; color: #1a1a2e; }
.fallback h1 { font-size: 1.6rem; margin-bottom: 0.5rem; }
.fallback-message { font-size: 1rem; line-height: 1.5; }
.fallback-poster { max-width: 100%; border-radius: 4px; }
.fallback-links a { margin-right: 1rem; color: #0f4c81; }
`

var reasonSelector = cascadia.MustCompile("[" + ReasonAttr + "]")

// inlineStyles applies every qualified rule of css to the matching nodes
// under root as style attributes, in rule order.
func inlineStyles(root *html.Node, css string) error {
	sheet, err := parser.Parse(css)
	if err != nil {
		return err
	}
	for _, rule := range sheet.Rules {
		if rule == nil || rule.Kind != cssast.QualifiedRule {
			continue
		}
		if len(rule.Selectors) == 0 || len(rule.Declarations) == 0 {
			continue
		}
		sel, err := cascadia.Compile(strings.Join(rule.Selectors, ", "))
		if err != nil {
			continue
		}
		var decls strings.Builder
		for _, d := range rule.Declarations {
			if d == nil || d.Property == "" {
				continue
			}
			decls.WriteString(d.Property)
			decls.WriteString(": ")
			decls.WriteString(d.Value)
			decls.WriteString("; ")
		}
		style := strings.TrimSpace(decls.String())
		if style == "" {
			continue
		}
		for _, n := range sel.MatchAll(root) {
			appendStyle(n, style)
		}
	}
	return nil
}

func appendStyle(n *html.Node, style string) {
	existing := getAttr(n, "style")
	if existing != "" {
		style = strings.TrimRight(existing, "; ") + "; " + style
	}
	setAttr(n, "style", style)
}

// containerReason extracts the reason marker from a painted subtree.
func containerReason(n *html.Node) string {
	if n == nil {
		return ""
	}
	if m := reasonSelector.MatchFirst(n); m != nil {
		return getAttr(m, ReasonAttr)
	}
	return ""
}

func stampContainerReason(n *html.Node, r Reason) {
	if m := reasonSelector.MatchFirst(n); m != nil {
		setAttr(m, ReasonAttr, string(r))
	}
}

func elem(a atom.Atom, tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     tag,
		Attr:     attrs,
	}
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func link(href, label, class string) *html.Node {
	attrs := []html.Attribute{attr("href", href)}
	if class != "" {
		attrs = append(attrs, attr("class", class))
	}
	a := elem(atom.A, "a", attrs...)
	a.AppendChild(textNode(label))
	return a
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
