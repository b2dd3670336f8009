package payloads

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/xssed/xssed/pkg/regexcache"
)

// classification window: how many bytes around the marker are inspected
// by the prefix heuristics
const classifyWindow = 100

var (
	scriptOpenRe = regexcache.MustGet(`(?i)<script[^>]*>[^<]*$`)
	styleOpenRe  = regexcache.MustGet(`(?i)<style[^>]*>[^<]*$`)
	attrOpenRe   = regexcache.MustGet(`(?i)([a-z-]+)\s*=\s*["'][^"']*$`)
)

// Classify reports the injection context a reflected marker landed in.
// It is a pure function: the same body/marker pair always yields the same
// context. Returns ContextUnknown when the marker is absent.
func Classify(body, marker string) Context {
	pos := strings.Index(body, marker)
	if pos == -1 {
		return ContextUnknown
	}
	return classifyAt(body, marker, pos)
}

// ClassifyAll reports every context the marker reflects in, one entry per
// occurrence context, deduplicated, in occurrence order. A payload that
// reflects both inside a script block and an attribute yields both.
func ClassifyAll(body, marker string) []Context {
	var out []Context
	seen := make(map[Context]bool)
	for pos := 0; ; {
		i := strings.Index(body[pos:], marker)
		if i == -1 {
			break
		}
		pos += i
		ctx := classifyAt(body, marker, pos)
		if !seen[ctx] {
			seen[ctx] = true
			out = append(out, ctx)
		}
		pos += len(marker)
	}
	return out
}

// classifyAt inspects the bytes immediately before one marker occurrence.
// The prefix heuristics mirror how a browser tokenizer would treat the
// position; the tokenizer pass below cross-checks attribute hits.
func classifyAt(body, marker string, pos int) Context {
	start := pos - classifyWindow
	if start < 0 {
		start = 0
	}
	prefix := body[start:pos]

	if scriptOpenRe.MatchString(prefix) {
		return ContextScript
	}
	if styleOpenRe.MatchString(prefix) {
		return ContextStyle
	}
	if m := attrOpenRe.FindStringSubmatch(prefix); m != nil {
		attr := strings.ToLower(m[1])
		if isURLAttr(attr) {
			return ContextURL
		}
		return ContextAttribute
	}

	// The prefix window can miss attribute starts that fall outside it
	// (long attribute values); the tokenizer sees the whole document.
	if ctx, ok := tokenizerContext(body, marker); ok {
		return ctx
	}
	return ContextHTML
}

func isURLAttr(attr string) bool {
	switch attr {
	case "href", "src", "action", "formaction", "data":
		return true
	}
	return false
}

// tokenizerContext walks the document and reports the context of the
// first marker occurrence the tokenizer can place.
func tokenizerContext(body, marker string) (Context, bool) {
	z := html.NewTokenizer(strings.NewReader(body))
	inScript, inStyle := false, false
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return ContextUnknown, false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			inScript = tag == "script"
			inStyle = tag == "style"
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if strings.Contains(string(val), marker) {
					if isURLAttr(strings.ToLower(string(key))) {
						return ContextURL, true
					}
					return ContextAttribute, true
				}
			}
		case html.EndTagToken:
			inScript, inStyle = false, false
		case html.TextToken:
			if strings.Contains(string(z.Text()), marker) {
				if inScript {
					return ContextScript, true
				}
				if inStyle {
					return ContextStyle, true
				}
				return ContextHTML, true
			}
		}
	}
}
