package payloads

import (
	"strings"

	"github.com/xssed/xssed/pkg/regexcache"
)

var tagNameRe = regexcache.MustGet(`(?i)<(/?)([a-z]+)`)

// Mutations derives filter-evasion variants of a payload: alternating tag
// case, a slash for the first intra-tag space, and a block comment before
// the first call parenthesis. Variants that would equal the original are
// dropped. The marker slot is never touched, so every variant still binds
// a unique marker at instantiation.
func Mutations(p Payload) []Payload {
	var out []Payload
	for _, m := range []struct {
		name string
		fn   func(string) string
	}{
		{"tag case", mutateCase},
		{"slash separator", mutateSeparator},
		{"comment split", mutateComment},
	} {
		v := m.fn(p.Template)
		if v == p.Template {
			continue
		}
		mp := p
		mp.Template = v
		mp.Complexity = p.Complexity + 1
		mp.Description = p.Description + ", " + m.name + " variant"
		out = append(out, mp)
	}
	return out
}

// WithMutations returns the given payloads followed by their mutations,
// so unmutated forms are still escalated first.
func WithMutations(ps []Payload) []Payload {
	out := append([]Payload(nil), ps...)
	for _, p := range ps {
		out = append(out, Mutations(p)...)
	}
	return out
}

// mutateCase alternates letter case inside HTML tag names. Tag matching in
// naive filters is often case-sensitive while browsers are not.
func mutateCase(tpl string) string {
	return tagNameRe.ReplaceAllStringFunc(tpl, func(tag string) string {
		b := []byte(tag)
		upper := true
		for i, c := range b {
			if c < 'a' || c > 'z' {
				if c >= 'A' && c <= 'Z' {
					b[i] = c + 'a' - 'A'
				}
				continue
			}
			if upper {
				b[i] = c - ('a' - 'A')
			}
			upper = !upper
		}
		return string(b)
	})
}

// mutateSeparator swaps the first space after a tag name for a slash,
// which browsers parse as an attribute separator.
func mutateSeparator(tpl string) string {
	open := strings.IndexByte(tpl, '<')
	if open < 0 {
		return tpl
	}
	end := strings.IndexByte(tpl[open:], '>')
	if end < 0 {
		return tpl
	}
	inner := tpl[open : open+end]
	space := strings.IndexByte(inner, ' ')
	if space < 0 {
		return tpl
	}
	return tpl[:open+space] + "/" + tpl[open+space+1:]
}

// mutateComment splits the first script call with a block comment
// (alert/**/(...)), defeating substring matches on the call form.
func mutateComment(tpl string) string {
	return strings.Replace(tpl, "(", "/**/(", 1)
}
