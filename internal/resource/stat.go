package resource

import (
	"context"
	"path/filepath"
	"strings"
)

// StatProbe turns a path into a FileRecord. It never fails: a path that
// cannot be stat'ed yields a record with Exists false.
type StatProbe struct {
	stater Stater
}

// NewStatProbe creates a probe over stater.
func NewStatProbe(stater Stater) *StatProbe {
	return &StatProbe{stater: stater}
}

// Probe stats path and records which pattern produced it. root is used to
// compute the record's relative path.
func (p *StatProbe) Probe(ctx context.Context, root, path, originalPattern string) FileRecord {
	rec := FileRecord{
		Label:           filepath.Base(path),
		AbsolutePath:    path,
		RelativePath:    relativeTo(root, path),
		OriginalPattern: originalPattern,
		Kind:            KindFile,
	}
	if ctx.Err() != nil {
		return rec
	}

	info, err := p.stater.Stat(path)
	if err != nil {
		return rec
	}

	rec.Exists = true
	if info.IsDir() {
		rec.Kind = KindDirectory
	}
	rec.SizeBytes = info.Size()
	rec.LastModifiedMs = info.ModTime().UnixMilli()
	return rec
}

// relativeTo returns path relative to root in slash form, or path itself
// when it lies outside root.
func relativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
