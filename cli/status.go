package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/richinex/spindle/model"
	"github.com/richinex/spindle/storage"
)

// Output formats for Status.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

const maxResultPreview = 80

// Status prints the invocation tree rooted at id.
func Status(ctx context.Context, id, format string, opts Options) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.close()

	journal, err := storage.OpenSqlite(s.settings.Journal.Driver, s.settings.Journal.Path)
	if err != nil {
		return err
	}
	defer journal.Close()

	records, err := journal.ListTree(ctx, id)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return model.Errorf(model.ErrNotFound, "no invocation %q", id)
	}
	return RenderTree(opts.stdout(), records, format)
}

// RenderTree writes records in the given format. Text output indents
// each record by its level below the root.
func RenderTree(w io.Writer, records []*model.InvocationRecord, format string) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		renderText(w, records)
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(records)
	default:
		return fmt.Errorf("%w: unknown format %q (text, json, yaml)", ErrUsage, format)
	}
}

func renderText(w io.Writer, records []*model.InvocationRecord) {
	ordered := sortTree(records)
	rootLevel := strings.Count(ordered[0].ID, "/")
	for _, rec := range ordered {
		indent := strings.Repeat("  ", strings.Count(rec.ID, "/")-rootLevel)
		fmt.Fprintf(w, "%s%s %s %q (depth %d)\n", indent, statusColor(rec.Status).Sprint(statusSymbol(rec.Status)), rec.ID, rec.Topic, rec.Depth)
		switch {
		case rec.Result != nil:
			fmt.Fprintf(w, "%s    %s\n", indent, truncateString(*rec.Result, maxResultPreview))
		case rec.Error != "":
			fmt.Fprintf(w, "%s    %s\n", indent, color.RedString(truncateString(rec.Error, maxResultPreview)))
		}
	}
}

// sortTree orders records depth-first, children after their parent in
// creation order. Records arrive ordered by creation time.
func sortTree(records []*model.InvocationRecord) []*model.InvocationRecord {
	children := make(map[string][]*model.InvocationRecord)
	byID := make(map[string]bool, len(records))
	for _, rec := range records {
		byID[rec.ID] = true
	}
	var roots []*model.InvocationRecord
	for _, rec := range records {
		if rec.ParentID == "" || !byID[rec.ParentID] {
			roots = append(roots, rec)
			continue
		}
		children[rec.ParentID] = append(children[rec.ParentID], rec)
	}

	out := make([]*model.InvocationRecord, 0, len(records))
	var walk func(rec *model.InvocationRecord)
	walk = func(rec *model.InvocationRecord) {
		out = append(out, rec)
		for _, child := range children[rec.ID] {
			walk(child)
		}
	}
	for _, root := range roots {
		walk(root)
	}
	return out
}

func statusSymbol(s model.InvocationStatus) string {
	switch s {
	case model.StatusCompleted:
		return "✓"
	case model.StatusFailed:
		return "✗"
	case model.StatusSuspended:
		return "…"
	default:
		return "•"
	}
}

func statusColor(s model.InvocationStatus) *color.Color {
	switch s {
	case model.StatusCompleted:
		return color.New(color.FgGreen)
	case model.StatusFailed:
		return color.New(color.FgRed)
	case model.StatusSuspended:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
