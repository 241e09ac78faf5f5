package extract

import (
	"regexp"
	"strings"
)

var classPattern = regexp.MustCompile(`(?m)^[ \t]*class[ \t]+([A-Za-z_][A-Za-z0-9_]*)[ \t]*\(([^)]*)\)[ \t]*:`)

// Scenes returns the names of classes whose base list mentions "Scene", in
// declaration order. The match is textual; bases are not resolved.
func Scenes(src []byte) []string {
	var names []string
	for _, m := range classPattern.FindAllSubmatch(src, -1) {
		if strings.Contains(string(m[2]), "Scene") {
			names = append(names, string(m[1]))
		}
	}
	return names
}
