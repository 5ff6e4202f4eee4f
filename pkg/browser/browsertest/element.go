package browsertest

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/crawlerd/crawlerd/pkg/browser"
)

// queryNodes resolves a locator against a parsed tree. XPath goes through
// htmlquery, CSS through goquery; both walk the same nodes so document
// order is preserved either way.
func queryNodes(doc *html.Node, loc browser.Locator) ([]*html.Node, error) {
	if loc.XPath != "" {
		nodes, err := htmlquery.QueryAll(doc, loc.XPath)
		if err != nil {
			return nil, browser.WrapSessionError("bad_locator", "invalid xpath "+loc.XPath, err)
		}
		return nodes, nil
	}
	gq := goquery.NewDocumentFromNode(doc)
	return gq.Find(loc.CSS).Nodes, nil
}

// Element is a fake browser.Element over one HTML node.
type Element struct {
	sess *Session
	node *html.Node
}

// Fill implements browser.Element.
func (e *Element) Fill(ctx context.Context, value string) error {
	e.sess.mu.Lock()
	defer e.sess.mu.Unlock()
	if e.sess.closed {
		return browser.ErrSessionClosed
	}

	switch e.node.Data {
	case "input", "textarea":
	default:
		return browser.ErrNotFillable
	}
	setAttr(e.node, "value", value)
	return nil
}

// Click implements browser.Element.
func (e *Element) Click(ctx context.Context) error {
	e.sess.mu.Lock()
	if e.sess.closed {
		e.sess.mu.Unlock()
		return browser.ErrSessionClosed
	}
	if _, disabled := attr(e.node, "disabled"); disabled {
		e.sess.mu.Unlock()
		return browser.ErrNotInteractable
	}
	e.sess.Clicks = append(e.sess.Clicks, strings.TrimSpace(htmlquery.InnerText(e.node)))
	hook := e.sess.ClickHook
	e.sess.mu.Unlock()

	if hook != nil {
		return hook(e.sess)
	}
	return nil
}

// SelectOption implements browser.Element.
func (e *Element) SelectOption(ctx context.Context, value string, byLabel bool) error {
	e.sess.mu.Lock()
	defer e.sess.mu.Unlock()
	if e.sess.closed {
		return browser.ErrSessionClosed
	}
	if e.node.Data != "select" {
		return browser.ErrNoSuchOption
	}

	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "option" {
			continue
		}
		optValue, _ := attr(c, "value")
		label := strings.TrimSpace(htmlquery.InnerText(c))
		if (byLabel && label == value) || (!byLabel && optValue == value) {
			setAttr(e.node, "value", optValue)
			setAttr(c, "selected", "selected")
			return nil
		}
	}
	return browser.ErrNoSuchOption
}

// Text implements browser.Element.
func (e *Element) Text(ctx context.Context) (string, error) {
	e.sess.mu.Lock()
	defer e.sess.mu.Unlock()
	if e.sess.closed {
		return "", browser.ErrSessionClosed
	}
	return strings.TrimSpace(htmlquery.InnerText(e.node)), nil
}

// HTML implements browser.Element.
func (e *Element) HTML(ctx context.Context) (string, error) {
	e.sess.mu.Lock()
	defer e.sess.mu.Unlock()
	if e.sess.closed {
		return "", browser.ErrSessionClosed
	}

	var buf bytes.Buffer
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// Attribute implements browser.Element.
func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	e.sess.mu.Lock()
	defer e.sess.mu.Unlock()
	if e.sess.closed {
		return "", browser.ErrSessionClosed
	}
	v, _ := attr(e.node, name)
	return v, nil
}

// Screenshot implements browser.Element.
func (e *Element) Screenshot(ctx context.Context) ([]byte, error) {
	e.sess.mu.Lock()
	defer e.sess.mu.Unlock()
	if e.sess.closed {
		return nil, browser.ErrSessionClosed
	}
	return []byte("fake-element-screenshot:" + e.node.Data), nil
}

// Node exposes the underlying HTML node for assertions.
func (e *Element) Node() *html.Node { return e.node }

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}
