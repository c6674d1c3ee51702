package resource

import (
	"fmt"
	"math"
	"strconv"
)

// Kind classifies a resolved path.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Context values attached to presentation entries. The tree layer uses them
// to decide which actions an entry offers.
const (
	ContextPatternGroup      = "patternGroup"
	ContextResourceFile      = "resourceFile"
	ContextResourceDirectory = "resourceDirectory"
	ContextMissingFile       = "missingResourceFile"
)

// FileRecord is one resolved file or directory. Records are never mutated
// after creation.
type FileRecord struct {
	Label           string `json:"label" yaml:"label"`
	AbsolutePath    string `json:"absolutePath" yaml:"absolutePath"`
	RelativePath    string `json:"relativePath" yaml:"relativePath"`
	OriginalPattern string `json:"originalPattern" yaml:"originalPattern"`
	Kind            Kind   `json:"kind" yaml:"kind"`
	SizeBytes       int64  `json:"sizeBytes" yaml:"sizeBytes"`
	LastModifiedMs  int64  `json:"lastModifiedEpochMs" yaml:"lastModifiedEpochMs"`
	Exists          bool   `json:"exists" yaml:"exists"`
}

// Entry is a FileRecord as presented to the tree layer: either a pattern
// group header or a file under the most recent header.
type Entry struct {
	FileRecord   `yaml:",inline"`
	Header       bool   `json:"header" yaml:"header"`
	Description  string `json:"description" yaml:"description"`
	ContextValue string `json:"contextValue" yaml:"contextValue"`
}

// PresentationList is the flat, display-ready result of a resolution.
type PresentationList []Entry

// Headers returns the header entries in order.
func (l PresentationList) Headers() []Entry {
	var headers []Entry
	for _, e := range l {
		if e.Header {
			headers = append(headers, e)
		}
	}
	return headers
}

// Files returns the non-header entries in order.
func (l PresentationList) Files() []Entry {
	var files []Entry
	for _, e := range l {
		if !e.Header {
			files = append(files, e)
		}
	}
	return files
}

// FormatSize renders a byte count with one decimal, e.g. "1.5 KB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	value := float64(bytes) / math.Pow(1024, float64(i))
	return fmt.Sprintf("%s %s", strconv.FormatFloat(math.Round(value*10)/10, 'f', -1, 64), units[i])
}
