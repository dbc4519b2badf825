package extract

import (
	"bytes"
	"strings"
)

// shellBodyLimit is the size below which a script heavy page counts as a shell.
const shellBodyLimit = 2048

// shellMarkers are mount points left empty by client rendered frameworks.
var shellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-app"),
}

// ScriptShell reports whether content looks like a page whose listings are
// rendered by JavaScript. Such pages yield nothing without a browser.
func ScriptShell(content []byte) bool {
	if len(bytes.TrimSpace(content)) == 0 {
		return true
	}
	if len(content) < shellBodyLimit && scriptShare(content) >= 25 {
		return true
	}
	for _, m := range shellMarkers {
		if bytes.Contains(content, m) {
			return true
		}
	}
	return false
}

// scriptShare returns the percentage of content inside <script> elements.
// An unterminated tag covers the rest of the document.
func scriptShare(content []byte) int {
	lower := strings.ToLower(string(content))
	covered := 0
	for pos := 0; pos < len(lower); {
		start := strings.Index(lower[pos:], "<script")
		if start < 0 {
			break
		}
		start += pos
		end := strings.Index(lower[start:], "</script>")
		if end < 0 {
			covered += len(lower) - start
			break
		}
		end = start + end + len("</script>")
		covered += end - start
		pos = end
	}
	return covered * 100 / len(lower)
}
