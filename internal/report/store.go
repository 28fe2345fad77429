package report

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentreflect/internal/errors"
	"agentreflect/internal/paths"
)

// Written lists the files produced by WriteAll.
type Written struct {
	JSON     string
	Markdown string
	WorkLog  string
}

// WriteAll writes the JSON report, the Markdown report and, when the
// report carries a work log, the work-log Markdown into dir.
func WriteAll(dir string, r *Report, day time.Time) (*Written, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(errors.IOFailed, "create output directory", err)
	}

	data, err := r.JSON()
	if err != nil {
		return nil, errors.New(errors.InternalError, "encode JSON report", err)
	}
	md, err := r.Markdown()
	if err != nil {
		return nil, errors.New(errors.InternalError, "render Markdown report", err)
	}

	out := &Written{
		JSON:     paths.ReportJSONPath(dir, day),
		Markdown: paths.ReportMarkdownPath(dir, day),
	}
	if err := writeFileAtomic(out.JSON, data); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(out.Markdown, []byte(md)); err != nil {
		return nil, err
	}

	if r.WorkLog != nil {
		wl, err := r.WorkLogMarkdown()
		if err != nil {
			return nil, errors.New(errors.InternalError, "render work log", err)
		}
		out.WorkLog = paths.WorkLogPath(dir, day)
		if err := writeFileAtomic(out.WorkLog, []byte(wl)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// writeFileAtomic writes through a temp file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.New(errors.IOFailed, "write "+path, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return errors.New(errors.IOFailed, "write "+path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return errors.New(errors.IOFailed, "write "+path, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return errors.New(errors.IOFailed, "write "+path, err)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return errors.New(errors.IOFailed, "write "+path, err)
	}
	return nil
}

// naiveLayouts cover timestamps written without a zone offset.
var naiveLayouts = []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"}

// ReadLastRun returns the timestamp recorded by the last successful run.
// ok is false when the file is missing or unparseable.
func ReadLastRun(dir string) (t time.Time, ok bool) {
	data, err := os.ReadFile(paths.LastRunPath(dir))
	if err != nil {
		return time.Time{}, false
	}
	s := strings.TrimSpace(string(data))
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return parsed, true
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// WriteLastRun records t as the last successful run.
func WriteLastRun(dir string, t time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(errors.IOFailed, "create output directory", err)
	}
	return writeFileAtomic(paths.LastRunPath(dir), []byte(t.Format(time.RFC3339Nano)))
}

// ResolveSince maps a scope to the start of the analysis window.
func ResolveSince(scope string, lastRun time.Time, hasLastRun bool, now time.Time) time.Time {
	switch {
	case scope == "since_last_run" && hasLastRun:
		return lastRun
	case scope == "last_24h" || !hasLastRun:
		return now.Add(-24 * time.Hour)
	case scope == "last_7d":
		return now.AddDate(0, 0, -7)
	default:
		return now.Add(-24 * time.Hour)
	}
}
