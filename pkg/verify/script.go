package verify

import "fmt"

// instrumentationScript is installed on every new document before any page
// script runs. It replaces the blocking dialog functions with record-and-
// dismiss versions, exposes a marker sink for payloads that execute without
// a dialog, and watches DOM mutations for executed marker content.
//
// The %q verb receives the run's marker prefix so the mutation observer
// only records this scan's tokens.
const instrumentationScriptTmpl = `
(() => {
  if (window.__xssedHits) { return; }
  window.__xssedHits = [];
  const record = (kind, detail) => {
    try { window.__xssedHits.push({ kind: kind, detail: String(detail) }); } catch (e) {}
  };
  window.__xssed = (m) => record('sink', m);
  window.alert = (msg) => { record('dialog', msg); };
  window.confirm = (msg) => { record('dialog', msg); return true; };
  window.prompt = (msg) => { record('dialog', msg); return ''; };
  const nativeWrite = document.write.bind(document);
  document.write = (markup) => { record('write', markup); nativeWrite(markup); };
  const prefix = %q;
  const observer = new MutationObserver((mutations) => {
    for (const m of mutations) {
      for (const n of m.addedNodes) {
        const text = n.textContent || '';
        if (text.indexOf(prefix) !== -1) { record('dom', text); }
      }
    }
  });
  observer.observe(document, { childList: true, subtree: true });
})();
`

func instrumentationScript(markerPrefix string) string {
	return fmt.Sprintf(instrumentationScriptTmpl, markerPrefix)
}
