package extract

import (
	"bytes"
	"strings"

	"scenetuner/internal/domain"
)

// headerKeywords mark a comment line as a category header.
var headerKeywords = []string{"parameter", "setting", "config", "option", "property"}

type header struct {
	name string
	line int
}

// Categorize partitions the declared parameters by the header comments that
// precede them. Parameters declared before any header go to "Default".
// Only the comment block directly above the assignment and comments inside
// the declaration count as headers.
// Categories appear in header order with Default first; empty categories are
// omitted.
func Categorize(src []byte) (domain.CategoryMap, error) {
	decl, err := Locate(src)
	if err != nil {
		return nil, err
	}
	return decl.Categories(src), nil
}

// Categories groups the declaration's parameters under the headers found in
// the comment block directly above the assignment and inside the declaration.
func (d *Declaration) Categories(src []byte) domain.CategoryMap {
	var headers []header
	first := commentBlockStart(src, d.Line)
	for _, h := range scanHeaders(src[:d.Span.End]) {
		if h.line >= first {
			headers = append(headers, h)
		}
	}

	groups := make(map[string][]string)
	order := []string{domain.DefaultCategory}
	for _, h := range headers {
		if _, ok := groups[h.name]; !ok {
			groups[h.name] = nil
			order = append(order, h.name)
		}
	}

	for _, spec := range d.Specs() {
		name := domain.DefaultCategory
		for _, h := range headers {
			if h.line >= spec.Line {
				break
			}
			name = h.name
		}
		groups[name] = append(groups[name], spec.Name)
	}

	var out domain.CategoryMap
	for _, name := range order {
		if params := groups[name]; len(params) > 0 {
			out = append(out, domain.Category{Name: name, Params: params})
		}
	}
	return out
}

// commentBlockStart returns the first line of the run of comment lines that
// ends right above line, or line itself when there is none.
func commentBlockStart(src []byte, line int) int {
	lines := bytes.Split(src, []byte("\n"))
	first := line
	for first > 1 && first-2 < len(lines) {
		if !bytes.HasPrefix(bytes.TrimSpace(lines[first-2]), []byte("#")) {
			break
		}
		first--
	}
	return first
}

func scanHeaders(src []byte) []header {
	var headers []header
	for i, raw := range bytes.Split(src, []byte("\n")) {
		line := strings.TrimSpace(string(raw))
		if !strings.HasPrefix(line, "#") {
			continue
		}
		text := strings.Trim(line, "#=-*~ \t")
		if text == "" || !isHeader(text) {
			continue
		}
		headers = append(headers, header{name: text, line: i + 1})
	}
	return headers
}

func isHeader(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range headerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
