// Package resolver maps action locators onto live element handles. The
// multiplicity policy is deliberately asymmetric: mutating an ambiguous
// match is unsafe, reading the first of several matches is not.
package resolver

import (
	"context"

	"github.com/crawlerd/crawlerd/pkg/browser"
)

// One resolves a locator for a mutating action. Exactly one element must
// match: zero is ErrNotFound, more than one is ErrAmbiguous.
func One(ctx context.Context, sess browser.Session, loc browser.Locator) (browser.Element, error) {
	elements, err := sess.Query(ctx, loc)
	if err != nil {
		return nil, err
	}
	switch len(elements) {
	case 0:
		return nil, browser.WrapSessionError("resolve", loc.String(), browser.ErrNotFound)
	case 1:
		return elements[0], nil
	default:
		return nil, browser.WrapSessionError("resolve", loc.String(), browser.ErrAmbiguous)
	}
}

// First resolves a locator for a read-only action, returning the first
// match in document order. Zero matches is still ErrNotFound.
func First(ctx context.Context, sess browser.Session, loc browser.Locator) (browser.Element, error) {
	elements, err := sess.Query(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, browser.WrapSessionError("resolve", loc.String(), browser.ErrNotFound)
	}
	return elements[0], nil
}

// All resolves every match in document order, for multi-value extraction.
// Zero matches is not an error: a multi-extract over an absent collection
// yields an empty list.
func All(ctx context.Context, sess browser.Session, loc browser.Locator) ([]browser.Element, error) {
	return sess.Query(ctx, loc)
}
