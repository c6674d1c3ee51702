package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opencode-ai/agentctx/internal/resource"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// encode writes v as indented JSON or YAML.
func encode(w io.Writer, v any, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// printList renders a presentation list. The text form prints each pattern
// header followed by its files, one row per file.
func printList(w io.Writer, list resource.PresentationList, format string) error {
	if format != formatText {
		if list == nil {
			list = resource.PresentationList{}
		}
		return encode(w, list, format)
	}

	if len(list) == 0 {
		fmt.Fprintln(w, "No resources.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range list {
		if e.Header {
			fmt.Fprintf(tw, "%s\t(%s)\t\t\n", e.Label, e.Description)
			continue
		}
		if !e.Exists {
			fmt.Fprintf(tw, "  %s\t%s\t\t\n", e.Label, e.Description)
			continue
		}
		modified := time.UnixMilli(e.LastModifiedMs).Format(time.DateTime)
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", e.Label, e.RelativePath, resource.FormatSize(e.SizeBytes), modified)
	}
	return tw.Flush()
}
