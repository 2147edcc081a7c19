package render

import (
	"fmt"
	"path/filepath"
	"strings"
)

const maxNameLen = 96

// sanitizeName turns a tile ID into a file name stem. Anything other than
// ASCII letters, digits, dot, underscore or dash becomes a single underscore.
func sanitizeName(id string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range id {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "tile"
	}
	return out
}

// OutputPath returns dir/<tile id><suffix>.png. The tile ID is sanitised
// and the result is checked to stay inside dir.
func OutputPath(dir, tileID, suffix string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve render dir: %w", err)
	}
	p := filepath.Join(absDir, sanitizeName(tileID)+suffix+".png")
	rel, err := filepath.Rel(absDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("render path for tile %q escapes %s", tileID, dir)
	}
	return p, nil
}
