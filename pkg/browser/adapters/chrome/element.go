package chrome

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/chromedp/chromedp"

	"github.com/crawlerd/crawlerd/pkg/browser"
)

// Element implements browser.Element, addressing its node by full XPath.
type Element struct {
	sess  *Session
	xpath string
}

func (e *Element) sel() (string, chromedp.QueryOption) {
	return e.xpath, chromedp.BySearch
}

// tagName reads the element's lowercased tag, or "" when the node has
// detached since resolution.
func (e *Element) tagName(ctx context.Context) (string, error) {
	js := fmt.Sprintf(
		`(function(){var n=document.evaluate(%s,document,null,XPathResult.FIRST_ORDERED_NODE_TYPE,null).singleNodeValue;return n?n.tagName.toLowerCase():"";})()`,
		strconv.Quote(e.xpath))
	var tag string
	if err := e.sess.run(ctx, chromedp.Evaluate(js, &tag)); err != nil {
		return "", err
	}
	return tag, nil
}

// Fill implements browser.Element.
func (e *Element) Fill(ctx context.Context, value string) error {
	tag, err := e.tagName(ctx)
	if err != nil {
		return browser.WrapSessionError("fill", "element lookup failed", err)
	}
	switch tag {
	case "input", "textarea":
	case "":
		return browser.ErrNotFound
	default:
		return browser.ErrNotFillable
	}

	sel, opt := e.sel()
	// SetValue clears any existing value before assignment and fires the
	// input/change events a page script would expect.
	if err := e.sess.run(ctx, chromedp.SetValue(sel, value, opt)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return browser.ErrNotFillable
		}
		return browser.WrapSessionError("fill", "set value failed", err)
	}
	return nil
}

// Click implements browser.Element.
func (e *Element) Click(ctx context.Context) error {
	sel, opt := e.sel()
	if err := e.sess.run(ctx, chromedp.Click(sel, opt)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// chromedp blocks until the node is visible and receives
			// events; running out of time means it never became
			// interactable.
			return browser.ErrNotInteractable
		}
		return browser.WrapSessionError("click", "click failed", err)
	}
	return nil
}

// SelectOption implements browser.Element.
func (e *Element) SelectOption(ctx context.Context, value string, byLabel bool) error {
	match := "o.value===want"
	if byLabel {
		match = "o.label.trim()===want||o.textContent.trim()===want"
	}
	js := fmt.Sprintf(
		`(function(){var n=document.evaluate(%s,document,null,XPathResult.FIRST_ORDERED_NODE_TYPE,null).singleNodeValue;
if(!n||n.tagName.toLowerCase()!=="select")return "no_select";
var want=%s;
for(var i=0;i<n.options.length;i++){var o=n.options[i];if(%s){n.value=o.value;n.dispatchEvent(new Event("change",{bubbles:true}));return "ok";}}
return "no_option";})()`,
		strconv.Quote(e.xpath), strconv.Quote(value), match)

	var outcome string
	if err := e.sess.run(ctx, chromedp.Evaluate(js, &outcome)); err != nil {
		return browser.WrapSessionError("select", "select evaluation failed", err)
	}
	switch outcome {
	case "ok":
		return nil
	case "no_select":
		return browser.ErrNoSuchOption
	default:
		return browser.ErrNoSuchOption
	}
}

// Text implements browser.Element.
func (e *Element) Text(ctx context.Context) (string, error) {
	sel, opt := e.sel()
	var text string
	if err := e.sess.run(ctx, chromedp.Text(sel, &text, opt)); err != nil {
		return "", browser.WrapSessionError("text", "text read failed", err)
	}
	return text, nil
}

// HTML implements browser.Element.
func (e *Element) HTML(ctx context.Context) (string, error) {
	sel, opt := e.sel()
	var inner string
	if err := e.sess.run(ctx, chromedp.InnerHTML(sel, &inner, opt)); err != nil {
		return "", browser.WrapSessionError("html", "innerHTML read failed", err)
	}
	return inner, nil
}

// Attribute implements browser.Element.
func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	sel, opt := e.sel()
	var value string
	var ok bool
	if err := e.sess.run(ctx, chromedp.AttributeValue(sel, name, &value, &ok, opt)); err != nil {
		return "", browser.WrapSessionError("attribute", "attribute read failed", err)
	}
	if !ok {
		return "", nil
	}
	return value, nil
}

// Screenshot implements browser.Element.
func (e *Element) Screenshot(ctx context.Context) ([]byte, error) {
	sel, opt := e.sel()
	var buf []byte
	if err := e.sess.run(ctx, chromedp.Screenshot(sel, &buf, opt)); err != nil {
		return nil, browser.WrapSessionError("screenshot", "element capture failed", err)
	}
	return buf, nil
}
