package report

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"agentreflect/internal/errors"
	"agentreflect/internal/paths"
)

// artifactPattern matches dated report files and captures the date.
var artifactPattern = regexp.MustCompile(`^(?:daily-report|work-log)-(\d{4}-\d{2}-\d{2})\.(?:json|md)$`)

// Archive compresses report artifacts in dir dated more than keepDays
// before today into .zst files and removes the originals. It returns the
// archived paths. keepDays <= 0 disables archiving.
func Archive(dir string, today time.Time, keepDays int) ([]string, error) {
	if keepDays <= 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(errors.IOFailed, "read output directory", err)
	}

	y, m, d := today.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -keepDays)

	var archived []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		match := artifactPattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		day, err := time.Parse(paths.DateLayout, match[1])
		if err != nil || !day.Before(cutoff) {
			continue
		}
		src := filepath.Join(dir, e.Name())
		if err := compressFile(src, src+".zst"); err != nil {
			return archived, err
		}
		if err := os.Remove(src); err != nil {
			return archived, errors.New(errors.IOFailed, "remove "+src, err)
		}
		archived = append(archived, src+".zst")
	}
	sort.Strings(archived)
	return archived, nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.New(errors.IOFailed, "open "+src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.New(errors.IOFailed, "create "+dst, err)
	}
	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		_ = out.Close()
		return errors.New(errors.IOFailed, "zstd writer", err)
	}
	if _, err := io.Copy(enc, in); err != nil {
		_ = enc.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return errors.New(errors.IOFailed, "compress "+src, err)
	}
	if err := enc.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return errors.New(errors.IOFailed, "compress "+src, err)
	}
	if err := out.Close(); err != nil {
		return errors.New(errors.IOFailed, "close "+dst, err)
	}
	return nil
}

// ReadArchived decompresses an archived artifact.
func ReadArchived(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(errors.IOFailed, "open "+path, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, errors.New(errors.IOFailed, "zstd reader", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, errors.New(errors.IOFailed, "decompress "+path, err)
	}
	return data, nil
}
