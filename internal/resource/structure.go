package resource

import (
	"cmp"
	"fmt"
	"slices"
)

// BuildFlatList groups records by the pattern that produced them. Each
// group becomes one header entry followed by its files sorted by label.
// Headers are ordered by the pattern's display form. Patterns listed in
// extra get a header even when they matched nothing.
func BuildFlatList(records []FileRecord, extra ...string) PresentationList {
	groups := make(map[string][]FileRecord)
	var order []string
	add := func(pattern string) {
		if _, ok := groups[pattern]; !ok {
			groups[pattern] = nil
			order = append(order, pattern)
		}
	}
	for _, rec := range records {
		add(rec.OriginalPattern)
		groups[rec.OriginalPattern] = append(groups[rec.OriginalPattern], rec)
	}
	for _, pattern := range extra {
		add(pattern)
	}

	slices.SortStableFunc(order, func(a, b string) int {
		return cmp.Compare(Normalize(a), Normalize(b))
	})

	list := make(PresentationList, 0, len(records)+len(order))
	for _, pattern := range order {
		files := slices.Clone(groups[pattern])
		slices.SortStableFunc(files, func(a, b FileRecord) int {
			return cmp.Or(
				cmp.Compare(a.Label, b.Label),
				cmp.Compare(a.RelativePath, b.RelativePath),
			)
		})

		list = append(list, headerEntry(pattern, len(files)))
		for _, rec := range files {
			list = append(list, fileEntry(rec))
		}
	}
	return list
}

func headerEntry(pattern string, n int) Entry {
	desc := fmt.Sprintf("%d files", n)
	if n == 1 {
		desc = "1 file"
	}
	return Entry{
		FileRecord: FileRecord{
			Label:           Normalize(pattern),
			RelativePath:    pattern,
			OriginalPattern: pattern,
			Kind:            KindDirectory,
			Exists:          true,
		},
		Header:       true,
		Description:  desc,
		ContextValue: ContextPatternGroup,
	}
}

func fileEntry(rec FileRecord) Entry {
	e := Entry{FileRecord: rec, Description: rec.RelativePath}
	switch {
	case !rec.Exists:
		e.Description += " (missing)"
		e.ContextValue = ContextMissingFile
	case rec.Kind == KindDirectory:
		e.ContextValue = ContextResourceDirectory
	default:
		e.ContextValue = ContextResourceFile
	}
	return e
}
