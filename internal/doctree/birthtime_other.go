//go:build !linux && !darwin

package doctree

import (
	"io/fs"
	"time"
)

func birthTime(string, fs.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}
