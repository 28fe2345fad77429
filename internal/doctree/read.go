package doctree

import (
	"bufio"
	"bytes"
	"os"
	"unicode/utf8"
)

// maxDocumentSize skips files too large to be notes.
const maxDocumentSize = 8 << 20

// ReadLines returns the file's lines. ok is false for unreadable,
// oversized or non-UTF-8 files, which callers skip silently.
func ReadLines(path string) (lines []string, ok bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() > maxDocumentSize {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil || !utf8.Valid(data) {
		return nil, false
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxDocumentSize)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if sc.Err() != nil {
		return nil, false
	}
	return lines, true
}
