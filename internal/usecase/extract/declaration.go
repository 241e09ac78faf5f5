// Package extract reads the PARAMETERS declaration of a manim-gl script
// without executing it.
//
// The declaration is a Python dictionary literal bound at top level:
//
//	PARAMETERS = {
//	    "amplitude": {"value": 2.0, "type": float, "unit": "m", ...},
//	}
//
// A dictionary literal is also a valid Starlark expression, so the literal is
// handed to go.starlark.net/syntax and decoded from the resulting tree. Every
// entry keeps the exact byte span of its value expression so the store can
// rewrite a single token in place.
package extract

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.starlark.net/syntax"

	"scenetuner/internal/domain"
)

// DeclarationName is the identifier the parameter dictionary must be bound to.
const DeclarationName = "PARAMETERS"

var declPattern = regexp.MustCompile(`(?m)^` + DeclarationName + `[ \t]*(?::[^=\n]*)?=`)

var fileOptions = &syntax.FileOptions{}

// Span is a half-open byte range of the source text.
type Span struct {
	Start, End int
}

// Entry is one parameter entry of the declaration.
type Entry struct {
	Name    string
	Line    int  // 1-based line of the entry key
	Key     Span // the quoted name
	Value   *Span
	HasMeta bool // the entry maps to a dictionary literal

	meta []*syntax.DictEntry
}

// Declaration is the located PARAMETERS dictionary.
type Declaration struct {
	Span    Span // the dictionary literal, braces included
	Line    int  // 1-based line of the assignment
	Entries []Entry
}

// Lookup returns the entry that defines name. When a name is declared more
// than once the last definition wins, matching Python dict semantics.
func (d *Declaration) Lookup(name string) (Entry, bool) {
	for i := len(d.Entries) - 1; i >= 0; i-- {
		if d.Entries[i].Name == name {
			return d.Entries[i], true
		}
	}
	return Entry{}, false
}

// Locate finds and parses the PARAMETERS declaration in src. The whole file
// must be lexically well formed: every string terminated and every bracket
// closed by its matching partner.
func Locate(src []byte) (*Declaration, error) {
	if err := checkTokens(src); err != nil {
		return nil, domain.NewSubSystemError("extract", "Extract.Locate", domain.ErrParse, err.Error())
	}

	var assign []int
	for _, m := range declPattern.FindAllIndex(src, -1) {
		// Skip comparisons such as "PARAMETERS == other".
		if m[1] < len(src) && src[m[1]] == '=' {
			continue
		}
		assign = m
		break
	}
	if assign == nil {
		return nil, domain.NewSubSystemError("extract", "Extract.Locate", domain.ErrParse,
			DeclarationName+" declaration not found")
	}

	start := skipSpace(src, assign[1])
	if start >= len(src) || src[start] != '{' {
		return nil, domain.NewSubSystemError("extract", "Extract.Locate", domain.ErrParse,
			DeclarationName+" is not bound to a dictionary literal")
	}
	end, err := matchBrace(src, start)
	if err != nil {
		return nil, domain.NewSubSystemError("extract", "Extract.Locate", domain.ErrParse, err.Error())
	}

	sub := src[start:end]
	expr, err := fileOptions.ParseExpr(DeclarationName, sub, 0)
	if err != nil {
		return nil, domain.NewSubSystemError("extract", "Extract.Locate", domain.ErrParse, err.Error())
	}
	dict, ok := unparen(expr).(*syntax.DictExpr)
	if !ok {
		return nil, domain.NewSubSystemError("extract", "Extract.Locate", domain.ErrParse,
			DeclarationName+" is not bound to a dictionary literal")
	}

	lines := newLineIndex(src)
	subLines := newLineIndex(sub)
	decl := &Declaration{
		Span: Span{Start: start, End: end},
		Line: lines.lineOf(assign[0]),
	}

	for _, item := range dict.List {
		de, ok := item.(*syntax.DictEntry)
		if !ok {
			continue
		}
		key, ok := de.Key.(*syntax.Literal)
		if !ok || key.Token != syntax.STRING {
			continue
		}
		name, _ := key.Value.(string)
		ks, ke := key.Span()
		entry := Entry{
			Name: name,
			Key:  Span{Start: start + subLines.offset(ks), End: start + subLines.offset(ke)},
		}
		entry.Line = lines.lineOf(entry.Key.Start)

		if meta, ok := unparen(de.Value).(*syntax.DictExpr); ok {
			entry.HasMeta = true
			for _, m := range meta.List {
				if me, ok := m.(*syntax.DictEntry); ok {
					entry.meta = append(entry.meta, me)
				}
			}
			if v := entry.lastMeta(domain.KeyValue); v != nil {
				vs, ve := v.Value.Span()
				entry.Value = &Span{Start: start + subLines.offset(vs), End: start + subLines.offset(ve)}
			}
		}
		decl.Entries = append(decl.Entries, entry)
	}
	return decl, nil
}

// lastMeta returns the last metadata entry with the given key.
func (e Entry) lastMeta(key string) *syntax.DictEntry {
	for i := len(e.meta) - 1; i >= 0; i-- {
		if metaKey(e.meta[i]) == key {
			return e.meta[i]
		}
	}
	return nil
}

func metaKey(de *syntax.DictEntry) string {
	lit, ok := de.Key.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return ""
	}
	s, _ := lit.Value.(string)
	return s
}

func unparen(e syntax.Expr) syntax.Expr {
	for {
		p, ok := e.(*syntax.ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}

func skipSpace(src []byte, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	return i
}

// matchBrace returns the offset just past the brace that closes src[open].
// Brackets inside string literals and comments are ignored.
func matchBrace(src []byte, open int) (int, error) {
	depth := 0
	for i := open; i < len(src); i++ {
		switch c := src[i]; c {
		case '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case '\'', '"':
			end, err := skipString(src, i)
			if err != nil {
				return 0, err
			}
			i = end - 1
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("unterminated %s dictionary", DeclarationName)
}

// checkTokens scans the whole file for unterminated strings and unbalanced
// brackets. It does not check the grammar outside the declaration.
func checkTokens(src []byte) error {
	closing := map[byte]byte{')': '(', ']': '[', '}': '{'}
	var open []int
	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case '\'', '"':
			end, err := skipString(src, i)
			if err != nil {
				return fmt.Errorf("line %d: %w", newLineIndex(src).lineOf(i), err)
			}
			i = end - 1
		case '(', '[', '{':
			open = append(open, i)
		case ')', ']', '}':
			if len(open) == 0 || src[open[len(open)-1]] != closing[c] {
				return fmt.Errorf("line %d: unmatched %q", newLineIndex(src).lineOf(i), c)
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) > 0 {
		last := open[len(open)-1]
		return fmt.Errorf("line %d: unclosed %q", newLineIndex(src).lineOf(last), src[last])
	}
	return nil
}

// skipString returns the offset just past the string literal starting at src[i].
func skipString(src []byte, i int) (int, error) {
	q := src[i]
	triple := i+2 < len(src) && src[i+1] == q && src[i+2] == q
	if triple {
		for j := i + 3; j < len(src); j++ {
			if src[j] == '\\' {
				j++
				continue
			}
			if src[j] == q && j+2 < len(src) && src[j+1] == q && src[j+2] == q {
				return j + 3, nil
			}
		}
		return 0, fmt.Errorf("unterminated triple-quoted string")
	}
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '\n':
			return 0, fmt.Errorf("unterminated string literal")
		case q:
			return j + 1, nil
		}
	}
	return 0, fmt.Errorf("unterminated string literal")
}

// lineIndex converts between byte offsets and starlark positions.
type lineIndex struct {
	src    []byte
	starts []int
}

func newLineIndex(src []byte) lineIndex {
	starts := []int{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return lineIndex{src: src, starts: starts}
}

// offset converts a 1-based line and rune column to a byte offset.
func (li lineIndex) offset(pos syntax.Position) int {
	line := int(pos.Line) - 1
	if line < 0 {
		return 0
	}
	if line >= len(li.starts) {
		return len(li.src)
	}
	off := li.starts[line]
	for col := int32(1); col < pos.Col && off < len(li.src); col++ {
		_, size := utf8.DecodeRune(li.src[off:])
		off += size
	}
	return off
}

// lineOf returns the 1-based line containing byte offset off.
func (li lineIndex) lineOf(off int) int {
	lo, hi := 0, len(li.starts)
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if li.starts[mid] <= off {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo + 1
}
