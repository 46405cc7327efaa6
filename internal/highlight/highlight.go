// Package highlight wraps query tokens in emphasis markup inside an already
// rendered HTML fragment without touching tags, attribute values, comments or
// character references.
//
// The fragment is scanned once with a small state machine instead of a full
// HTML parser. A '<' opens a tag only when followed by a letter, '/', '!' or
// '?'; any other '<' is literal text.
package highlight

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/note-search/pkg/errors"
)

// DefaultTag is the element used by Highlight.
const DefaultTag = "mark"

const maxEntityLen = 32

type scanState int

const (
	stateText scanState = iota
	stateTagOpen
	stateAttrValue
)

type Highlighter struct {
	open  string
	close string
}

// New returns a Highlighter that wraps matches in <tag>...</tag>. An empty
// or invalid tag name falls back to DefaultTag.
func New(tag string) *Highlighter {
	if !validTagName(tag) {
		tag = DefaultTag
	}
	return &Highlighter{open: "<" + tag + ">", close: "</" + tag + ">"}
}

var defaultHighlighter = New(DefaultTag)

// Highlight marks tokens in fragment with <mark>.
func Highlight(fragment string, tokens []string) string {
	return defaultHighlighter.Highlight(fragment, tokens)
}

// Highlight is Markup that returns fragment unchanged when it is malformed.
func (h *Highlighter) Highlight(fragment string, tokens []string) string {
	out, err := h.Markup(fragment, tokens)
	if err != nil {
		return fragment
	}
	return out
}

// Markup wraps every non-overlapping occurrence of any token found in text
// nodes. At each position the longest matching token wins. Tokens made of
// letters and digits must sit on word boundaries; CJK tokens match anywhere.
// Boundaries are judged on the rendered text, so a character reference or an
// inline element such as <b> does not end a word. Matching is case-sensitive.
//
// It fails with ErrMalformedFragment for invalid UTF-8 or a tag, attribute
// value or comment that is never closed.
func (h *Highlighter) Markup(fragment string, tokens []string) (string, error) {
	toks := prepare(tokens)
	if len(toks) == 0 {
		return fragment, nil
	}
	if !utf8.ValidString(fragment) {
		return "", fmt.Errorf("%w: invalid UTF-8", apperrors.ErrMalformedFragment)
	}

	var sb strings.Builder
	sb.Grow(len(fragment) + 16)

	state := stateText
	var quote byte
	textStart := 0
	markupStart := 0
	// prev is the last rune a reader sees before the current text run, or 0
	// at the start of the fragment or after an element that breaks the flow.
	var prev rune

	i := 0
	for i < len(fragment) {
		c := fragment[i]
		switch state {
		case stateText:
			switch {
			case c == '<' && strings.HasPrefix(fragment[i:], "<!--"):
				prev = h.markRun(&sb, fragment, textStart, i, toks, prev)
				end := strings.Index(fragment[i+4:], "-->")
				if end < 0 {
					return "", fmt.Errorf("%w: unterminated comment at byte %d", apperrors.ErrMalformedFragment, i)
				}
				next := i + 4 + end + 3
				sb.WriteString(fragment[i:next])
				i = next
				textStart = i
				continue
			case c == '<' && opensTag(fragment, i):
				prev = h.markRun(&sb, fragment, textStart, i, toks, prev)
				markupStart = i
				state = stateTagOpen
			case c == '&':
				if n := entityLen(fragment[i:]); n > 0 {
					h.markRun(&sb, fragment, textStart, i, toks, prev)
					ref := fragment[i : i+n]
					sb.WriteString(ref)
					prev, _ = utf8.DecodeLastRuneInString(html.UnescapeString(ref))
					i += n
					textStart = i
					continue
				}
			}
		case stateTagOpen:
			switch c {
			case '"', '\'':
				quote = c
				state = stateAttrValue
			case '>':
				tag := fragment[markupStart : i+1]
				sb.WriteString(tag)
				if !inlineTag(tag) {
					prev = 0
				}
				state = stateText
				textStart = i + 1
			}
		case stateAttrValue:
			if c == quote {
				state = stateTagOpen
			}
		}
		i++
	}

	if state != stateText {
		return "", fmt.Errorf("%w: unterminated tag at byte %d", apperrors.ErrMalformedFragment, markupStart)
	}
	h.markRun(&sb, fragment, textStart, len(fragment), toks, prev)
	return sb.String(), nil
}

// markRun writes the text node fragment[start:end], wrapping matches, and
// returns its last rune, or prev when the node is empty. Word boundaries at
// the node's edges are judged by the visible runes around it.
func (h *Highlighter) markRun(sb *strings.Builder, fragment string, start, end int, toks []token, prev rune) rune {
	if start >= end {
		return prev
	}
	run := fragment[start:end]
	edges := boundary{before: prev, after: visibleRuneAt(fragment, end)}
	last := 0
	i := 0
	for i < len(run) {
		if n := matchAt(run, i, toks, edges); n > 0 {
			sb.WriteString(run[last:i])
			sb.WriteString(h.open)
			sb.WriteString(run[i : i+n])
			sb.WriteString(h.close)
			i += n
			last = i
			continue
		}
		_, size := utf8.DecodeRuneInString(run[i:])
		i += size
	}
	sb.WriteString(run[last:])
	r, _ := utf8.DecodeLastRuneInString(run)
	return r
}

// boundary holds the visible runes just outside a text run.
type boundary struct {
	before rune
	after  rune
}

type token struct {
	text       string
	leftBound  bool
	rightBound bool
}

// prepare drops empty, invalid and repeated tokens and orders the rest
// longest first.
func prepare(tokens []string) []token {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]token, 0, len(tokens))
	for _, t := range tokens {
		if t == "" || !utf8.ValidString(t) {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		first, _ := utf8.DecodeRuneInString(t)
		lastRune, _ := utf8.DecodeLastRuneInString(t)
		out = append(out, token{
			text:       t,
			leftBound:  isWordRune(first),
			rightBound: isWordRune(lastRune),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].text) != len(out[j].text) {
			return len(out[i].text) > len(out[j].text)
		}
		return out[i].text < out[j].text
	})
	return out
}

// matchAt returns the byte length of the longest token matching run at i, or 0.
func matchAt(run string, i int, toks []token, edges boundary) int {
	rest := run[i:]
	for _, t := range toks {
		if !strings.HasPrefix(rest, t.text) {
			continue
		}
		end := i + len(t.text)
		if t.leftBound {
			before := edges.before
			if i > 0 {
				before, _ = utf8.DecodeLastRuneInString(run[:i])
			}
			if isWordRune(before) {
				continue
			}
		}
		if t.rightBound {
			after := edges.after
			if end < len(run) {
				after, _ = utf8.DecodeRuneInString(run[end:])
			}
			if isWordRune(after) {
				continue
			}
		}
		return len(t.text)
	}
	return 0
}

// visibleRuneAt returns the first rune rendered from s[i:], looking through
// comments, inline elements and character references. It returns 0 at the
// end of s or at a tag that breaks the text flow.
func visibleRuneAt(s string, i int) rune {
	for i < len(s) {
		switch {
		case strings.HasPrefix(s[i:], "<!--"):
			end := strings.Index(s[i+4:], "-->")
			if end < 0 {
				return 0
			}
			i += 4 + end + 3
		case s[i] == '<' && opensTag(s, i):
			end := tagEnd(s, i)
			if end < 0 || !inlineTag(s[i:end]) {
				return 0
			}
			i = end
		case s[i] == '&':
			if n := entityLen(s[i:]); n > 0 {
				r, _ := utf8.DecodeRuneInString(html.UnescapeString(s[i : i+n]))
				return r
			}
			return '&'
		default:
			r, _ := utf8.DecodeRuneInString(s[i:])
			return r
		}
	}
	return 0
}

// tagEnd returns the index just past the '>' closing the tag that starts at
// s[i], or -1.
func tagEnd(s string, i int) int {
	var quote byte
	for j := i + 1; j < len(s); j++ {
		c := s[j]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return j + 1
		}
	}
	return -1
}

// inlineElements do not break a word when they sit inside one.
var inlineElements = map[string]struct{}{
	"a": {}, "abbr": {}, "b": {}, "bdi": {}, "bdo": {}, "cite": {}, "code": {},
	"data": {}, "del": {}, "dfn": {}, "em": {}, "i": {}, "ins": {}, "kbd": {},
	"mark": {}, "q": {}, "s": {}, "samp": {}, "small": {}, "span": {},
	"strong": {}, "sub": {}, "sup": {}, "time": {}, "u": {}, "var": {},
}

// inlineTag reports whether tag, a complete start or end tag, names an
// inline element.
func inlineTag(tag string) bool {
	name := strings.TrimPrefix(tag[1:], "/")
	n := 0
	for n < len(name) && (isASCIILetter(name[n]) || (name[n] >= '0' && name[n] <= '9')) {
		n++
	}
	_, ok := inlineElements[strings.ToLower(name[:n])]
	return ok
}

// isWordRune reports whether r belongs to a space-delimited word. CJK text
// has no word separators, so CJK runes never form a boundary constraint.
func isWordRune(r rune) bool {
	if tokenizer.IsCJK(r) {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func opensTag(s string, i int) bool {
	if i+1 >= len(s) {
		return false
	}
	c := s[i+1]
	return c == '/' || c == '!' || c == '?' || isASCIILetter(c)
}

// entityLen returns the length of a character reference such as "&amp;" or
// "&#x27;" at the start of s, or 0.
func entityLen(s string) int {
	if len(s) < 3 || s[0] != '&' {
		return 0
	}
	j := 1
	if s[j] == '#' {
		j++
	}
	start := j
	for j < len(s) && j <= maxEntityLen {
		c := s[j]
		if c == ';' {
			if j == start {
				return 0
			}
			return j + 1
		}
		if !isASCIILetter(c) && (c < '0' || c > '9') {
			return 0
		}
		j++
	}
	return 0
}

func validTagName(tag string) bool {
	if tag == "" || !isASCIILetter(tag[0]) {
		return false
	}
	for i := 1; i < len(tag); i++ {
		c := tag[i]
		if !isASCIILetter(c) && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
