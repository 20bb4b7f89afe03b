// pkg/auth/dom.go

package auth

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/guidecap-cli/pkg/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Structural selectors for the common login form shapes. Matching is
// attempted in order, so the most specific selectors come first.
var (
	identifierSelectors = []string{
		`input[type="email"]`,
		`input[name="email"]`,
		`input[autocomplete="email"]`,
		`input[autocomplete="username"]`,
		`input[placeholder*="email" i]`,
		`input[id*="email" i]`,
		`input[name="username"]`,
		`input[name="login"]`,
	}
	secretSelectors = []string{
		`input[type="password"]`,
		`input[name="password"]`,
		`input[autocomplete="current-password"]`,
		`input[id*="password" i]`,
	}
	advanceSelectors = []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`button`,
		`[role="button"]`,
	}
	loginLinkSelectors = []string{
		`a`,
		`button`,
		`[role="button"]`,
		`[role="link"]`,
	}
)

// Button text filters. A sign-in control is matched by signInTerms and must
// not match signUpTerms, so "Sign up" never wins over "Sign in".
var (
	signInTerms  = []string{"sign in", "log in", "login", "signin"}
	signUpTerms  = []string{"sign up", "signup", "register", "create account", "create an account", "get started", "join"}
	advanceTerms = []string{"continue", "next", "sign in", "log in", "login", "submit"}
)

const domProbeScript = `(() => {
	const sels = %[1]s;
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		const s = window.getComputedStyle(el);
		return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
	};
	for (const sel of sels) {
		let found;
		try { found = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const el of found) {
			if (visible(el)) return true;
		}
	}
	return false;
})()`

const fillFirstScript = `(() => {
	const sels = %[1]s;
	const value = %[2]s;
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		const s = window.getComputedStyle(el);
		return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
	};
	for (const sel of sels) {
		let found;
		try { found = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const el of found) {
			if (!visible(el)) continue;
			el.focus();
			const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
			const setter = Object.getOwnPropertyDescriptor(proto, 'value');
			if (setter && setter.set) { setter.set.call(el, value); } else { el.value = value; }
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		}
	}
	return false;
})()`

const locateClickableScript = `(() => {
	const sels = %[1]s;
	const include = %[2]s;
	const exclude = %[3]s;
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		const s = window.getComputedStyle(el);
		return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
	};
	const label = (el) => ((el.innerText || el.value || el.getAttribute('aria-label') || '') + '').toLowerCase().trim();
	for (const sel of sels) {
		let found;
		try { found = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const el of found) {
			if (!visible(el)) continue;
			const text = label(el);
			if (include.length > 0 && !include.some(t => text.includes(t))) continue;
			if (exclude.some(t => text.includes(t))) continue;
			el.scrollIntoView({ block: 'center', inline: 'center' });
			const r = el.getBoundingClientRect();
			if (%[4]t) { el.click(); }
			return { found: true, x: r.left + r.width / 2, y: r.top + r.height / 2 };
		}
	}
	return { found: false, x: 0, y: 0 };
})()`

const focusFirstScript = `(() => {
	const sels = %[1]s;
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		const s = window.getComputedStyle(el);
		return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
	};
	for (const sel of sels) {
		let found;
		try { found = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const el of found) {
			if (visible(el)) { el.focus(); return true; }
		}
	}
	return false;
})()`

// anyVisible reports whether any selector matches a visible element.
func anyVisible(ctx context.Context, page browser.Page, selectors []string) (bool, error) {
	sels, err := json.MarshalToString(selectors)
	if err != nil {
		return false, err
	}
	var out bool
	if err := page.Evaluate(ctx, fmt.Sprintf(domProbeScript, sels), &out); err != nil {
		return false, err
	}
	return out, nil
}

// fillFirst sets the value of the first visible element matching any
// selector, using the native setter so framework bindings observe it.
func fillFirst(ctx context.Context, page browser.Page, selectors []string, value string) (bool, error) {
	sels, err := json.MarshalToString(selectors)
	if err != nil {
		return false, err
	}
	quoted, err := json.MarshalToString(value)
	if err != nil {
		return false, err
	}
	var out bool
	if err := page.Evaluate(ctx, fmt.Sprintf(fillFirstScript, sels, quoted), &out); err != nil {
		return false, err
	}
	return out, nil
}

type clickTarget struct {
	Found bool    `json:"found"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// clickFirst clicks the first visible element matching a selector whose text
// matches the include terms and none of the exclude terms. A trusted input
// click is attempted first, then a JS click.
func clickFirst(ctx context.Context, page browser.Page, selectors, include, exclude []string) (bool, error) {
	sels, err := json.MarshalToString(selectors)
	if err != nil {
		return false, err
	}
	inc, err := json.MarshalToString(include)
	if err != nil {
		return false, err
	}
	exc, err := json.MarshalToString(exclude)
	if err != nil {
		return false, err
	}

	var target clickTarget
	if err := page.Evaluate(ctx, fmt.Sprintf(locateClickableScript, sels, inc, exc, false), &target); err != nil {
		return false, err
	}
	if !target.Found {
		return false, nil
	}
	if err := page.Click(ctx, target.X, target.Y); err == nil {
		return true, nil
	}
	// Fall back to a synthetic click inside the page.
	if err := page.Evaluate(ctx, fmt.Sprintf(locateClickableScript, sels, inc, exc, true), &target); err != nil {
		return false, err
	}
	return target.Found, nil
}

// pressEnterIn focuses the first visible match and sends a real Enter key.
func pressEnterIn(ctx context.Context, page browser.Page, selectors []string) (bool, error) {
	sels, err := json.MarshalToString(selectors)
	if err != nil {
		return false, err
	}
	var focused bool
	if err := page.Evaluate(ctx, fmt.Sprintf(focusFirstScript, sels), &focused); err != nil {
		return false, err
	}
	if !focused {
		return false, nil
	}
	if err := page.PressKey(ctx, "Enter"); err != nil {
		return false, err
	}
	return true, nil
}
