package browsertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlerd/crawlerd/pkg/browser"
)

const testPage = `<html><body>
<h1>Product Page</h1>
<form>
  <input id="email" name="email" type="text">
  <select id="country"><option value="us">United States</option><option value="se">Sweden</option></select>
  <button type="submit" disabled>Buy</button>
</form>
<span class="price">19.99</span>
<span class="price">24.99</span>
</body></html>`

func newTestSession(t *testing.T) *Session {
	t.Helper()
	rt := NewRuntime()
	rt.AddPage("https://example.com", testPage)

	sess, err := rt.NewSession(context.Background(), browser.SessionConfig{TaskID: "t1"})
	require.NoError(t, err)
	require.NoError(t, sess.Navigate(context.Background(), "https://example.com", browser.NavigateOptions{}))
	return sess.(*Session)
}

func TestQuery_XPathAndCSS(t *testing.T) {
	sess := newTestSession(t)
	ctx := context.Background()

	byXPath, err := sess.Query(ctx, browser.Locator{XPath: "//span[@class='price']"})
	require.NoError(t, err)
	assert.Len(t, byXPath, 2)

	byCSS, err := sess.Query(ctx, browser.Locator{CSS: "span.price"})
	require.NoError(t, err)
	assert.Len(t, byCSS, 2)

	// Same tree, same document order.
	first, err := byXPath[0].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "19.99", first)
}

func TestElement_FillAndSelect(t *testing.T) {
	sess := newTestSession(t)
	ctx := context.Background()

	inputs, err := sess.Query(ctx, browser.Locator{XPath: "//input[@id='email']"})
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.NoError(t, inputs[0].Fill(ctx, "user@example.com"))

	v, err := inputs[0].Attribute(ctx, "value")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", v)

	headings, err := sess.Query(ctx, browser.Locator{XPath: "//h1"})
	require.NoError(t, err)
	assert.ErrorIs(t, headings[0].Fill(ctx, "x"), browser.ErrNotFillable)

	selects, err := sess.Query(ctx, browser.Locator{XPath: "//select"})
	require.NoError(t, err)
	require.NoError(t, selects[0].SelectOption(ctx, "Sweden", true))
	assert.ErrorIs(t, selects[0].SelectOption(ctx, "Norway", true), browser.ErrNoSuchOption)
}

func TestElement_DisabledNotInteractable(t *testing.T) {
	sess := newTestSession(t)
	ctx := context.Background()

	buttons, err := sess.Query(ctx, browser.Locator{XPath: "//button"})
	require.NoError(t, err)
	assert.ErrorIs(t, buttons[0].Click(ctx), browser.ErrNotInteractable)
}

func TestWaitFor_AppearsAfterMutation(t *testing.T) {
	sess := newTestSession(t)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = sess.SetHTML(`<html><body><div id="late">done</div></body></html>`)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := sess.WaitFor(ctx, browser.Locator{XPath: "//div[@id='late']"}, browser.WaitStateVisible)
	require.NoError(t, err)
}

func TestWaitFor_Timeout(t *testing.T) {
	sess := newTestSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := sess.WaitFor(ctx, browser.Locator{XPath: "//div[@id='never']"}, browser.WaitStateVisible)
	assert.ErrorIs(t, err, browser.ErrWaitTimeout)
}
