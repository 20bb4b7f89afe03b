// pkg/action/script.go
package action

// resolveScriptTemplate locates marker %d in the live DOM, scrolls it into
// view, and reports its center coordinates.
const resolveScriptTemplate = `
(() => {
    const els = window.__guidecapElements || [];
    const el = els[%[1]d] || document.querySelector('[data-guidecap-marker="%[1]d"]');
    if (!el || !el.isConnected) return { found: false };
    el.scrollIntoView({ block: 'center', inline: 'center' });
    const r = el.getBoundingClientRect();
    return {
        found: true,
        tag: el.tagName.toLowerCase(),
        inputType: (el.getAttribute('type') || '').toLowerCase(),
        editable: el.isContentEditable === true,
        x: r.left + r.width / 2,
        y: r.top + r.height / 2
    };
})()
`

// jsClickScriptTemplate synthesizes a full pointer-event sequence at the
// element center plus a direct invocation, covering delegation-heavy pages
// where trusted coordinate clicks land on an overlay.
const jsClickScriptTemplate = `
(() => {
    const els = window.__guidecapElements || [];
    const el = els[%[1]d] || document.querySelector('[data-guidecap-marker="%[1]d"]');
    if (!el) return false;
    const r = el.getBoundingClientRect();
    const opts = {
        bubbles: true,
        cancelable: true,
        view: window,
        clientX: r.left + r.width / 2,
        clientY: r.top + r.height / 2
    };
    el.dispatchEvent(new MouseEvent('mousedown', opts));
    el.dispatchEvent(new MouseEvent('mouseup', opts));
    el.dispatchEvent(new MouseEvent('click', opts));
    if (typeof el.click === 'function') el.click();
    return true;
})()
`

// setValueScriptTemplate assigns %s to the field behind marker %d through the
// native value setter, then fires input/change so framework bindings update.
const setValueScriptTemplate = `
(() => {
    const els = window.__guidecapElements || [];
    const el = els[%[1]d] || document.querySelector('[data-guidecap-marker="%[1]d"]');
    if (!el) return false;
    el.focus();
    const proto = el.tagName === 'TEXTAREA'
        ? window.HTMLTextAreaElement.prototype
        : window.HTMLInputElement.prototype;
    const desc = Object.getOwnPropertyDescriptor(proto, 'value');
    if (desc && desc.set) {
        desc.set.call(el, %[2]s);
    } else {
        el.value = %[2]s;
    }
    el.dispatchEvent(new Event('input', { bubbles: true }));
    el.dispatchEvent(new Event('change', { bubbles: true }));
    return true;
})()
`
