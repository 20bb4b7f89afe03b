// pkg/index/script.go
package index

// markScript is injected to find, register, and label interactive elements.
// Marked elements are kept in window.__guidecapElements (and tagged with a
// data attribute as a fallback) so later scripts can resolve them by index.
const markScript = `
(() => {
    const SELECTORS = [
        'button',
        'a[href]',
        'input:not([type=hidden])',
        'textarea',
        'select',
        '[role=button]',
        '[role=link]',
        '[role=tab]',
        '[role=menuitem]',
        '[onclick]',
        '[contenteditable=true]',
        'div[class*=button]',
        'span[class*=button]',
        '[class*=clickable]',
        '[class*=interactive]',
        '[data-clickable]'
    ].join(',');

    const isVisible = (el) => {
        const r = el.getBoundingClientRect();
        if (r.width === 0 || r.height === 0) return false;
        const st = window.getComputedStyle(el);
        return st.visibility !== 'hidden' && st.display !== 'none' && parseFloat(st.opacity) !== 0;
    };

    const seen = new Set();
    const els = [];

    document.querySelectorAll(SELECTORS).forEach(el => {
        if (!seen.has(el) && isVisible(el)) {
            seen.add(el);
            els.push(el);
        }
    });

    // Heuristic: clickable-looking elements the selector list missed. Size
    // bounds keep page-wide wrappers and tiny icons out.
    document.querySelectorAll('*').forEach(el => {
        if (seen.has(el)) return;
        const st = window.getComputedStyle(el);
        if (st.cursor !== 'pointer') return;
        const r = el.getBoundingClientRect();
        if (!(r.width > 20 && r.width < 500 && r.height > 15 && r.height < 200)) return;
        if (!isVisible(el)) return;
        seen.add(el);
        els.push(el);
    });

    // Clear any stale overlays from a previous scan.
    document.querySelectorAll('.guidecap-marker').forEach(n => n.remove());

    window.__guidecapElements = els;

    const out = [];
    els.forEach((el, i) => {
        el.setAttribute('data-guidecap-marker', String(i));
        const r = el.getBoundingClientRect();

        const label = document.createElement('div');
        label.className = 'guidecap-marker';
        label.textContent = '[' + i + ']';
        label.style.cssText =
            'position:fixed;z-index:2147483647;background:#e11;color:#fff;' +
            'font:bold 12px monospace;padding:1px 3px;border-radius:2px;pointer-events:none;' +
            'left:' + Math.max(0, r.left) + 'px;top:' + Math.max(0, r.top - 14) + 'px;';
        document.body.appendChild(label);

        out.push({
            marker: i,
            tag: el.tagName.toLowerCase(),
            text: (el.innerText || el.value || '').trim().slice(0, 100),
            role: el.getAttribute('role') || '',
            ariaLabel: el.getAttribute('aria-label') || '',
            placeholder: el.getAttribute('placeholder') || '',
            inputType: (el.getAttribute('type') || '').toLowerCase(),
            href: el.getAttribute('href') || '',
            editable: el.isContentEditable === true
        });
    });
    return out;
})()
`

// unmarkScript removes all overlays and tracking attributes. Idempotent.
const unmarkScript = `
(() => {
    document.querySelectorAll('.guidecap-marker').forEach(n => n.remove());
    document.querySelectorAll('[data-guidecap-marker]').forEach(n => n.removeAttribute('data-guidecap-marker'));
    delete window.__guidecapElements;
    return true;
})()
`

// highlightScriptTemplate outlines the element behind marker %d for long
// enough to land in a screenshot.
const highlightScriptTemplate = `
(() => {
    const els = window.__guidecapElements || [];
    const el = els[%[1]d] || document.querySelector('[data-guidecap-marker="%[1]d"]');
    if (!el) return false;
    const prev = el.style.outline;
    el.style.outline = '3px solid #2ea043';
    setTimeout(() => { el.style.outline = prev; }, 1500);
    return true;
})()
`
