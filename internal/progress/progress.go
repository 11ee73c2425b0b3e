// Package progress renders and reads the PROGRESS.md checklist tracker.
//
// The tracker is plain markdown: a title, a progress bar, and one checkbox
// line per pipeline stage. Every stage is exactly checked or unchecked;
// anything the pipeline knows beyond that travels in the trailing note.
package progress

import (
	"fmt"
	"regexp"
	"strings"
)

const barWidth = 20

// Item is one tracked step of the preparation checklist.
type Item struct {
	ID   string
	Name string
	Done bool
	// Note annotates an item with its pending reason (blocked, waiting,
	// failed). Rendered in parentheses after the name.
	Note string
}

var itemPattern = regexp.MustCompile(`^- \[([x ])\] ([^:]+): (.*)$`)

// Render produces the tracker document for the given title and items.
func Render(title string, items []Item) []byte {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n\n")

	done := 0
	for _, item := range items {
		if item.Done {
			done++
		}
	}
	fmt.Fprintf(&b, "%s %d/%d stages\n\n", Bar(done, len(items), barWidth), done, len(items))

	for _, item := range items {
		mark := " "
		if item.Done {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s: %s", mark, item.ID, item.Name)
		if note := strings.TrimSpace(item.Note); note != "" {
			fmt.Fprintf(&b, " (%s)", note)
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// Bar renders a fixed-width block progress bar.
func Bar(done, total, width int) string {
	if total <= 0 {
		total = 1
	}
	if width < 1 {
		width = 1
	}
	filled := done * width / total
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// Parse reads a tracker document back into its title and items. Lines other
// than the title and checkbox entries are ignored.
func Parse(data []byte) (string, []Item, error) {
	var title string
	var items []Item
	for i, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimRight(line, " \t")
		switch {
		case title == "" && strings.HasPrefix(trimmed, "# "):
			title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		case strings.HasPrefix(trimmed, "- ["):
			match := itemPattern.FindStringSubmatch(trimmed)
			if match == nil {
				return "", nil, fmt.Errorf("progress: malformed item on line %d: %q", i+1, trimmed)
			}
			name, note := splitNote(match[3])
			items = append(items, Item{
				ID:   strings.TrimSpace(match[2]),
				Name: name,
				Done: match[1] == "x",
				Note: note,
			})
		}
	}
	return title, items, nil
}

// splitNote separates a trailing parenthesized note from the item name.
func splitNote(rest string) (string, string) {
	rest = strings.TrimSpace(rest)
	if !strings.HasSuffix(rest, ")") {
		return rest, ""
	}
	idx := strings.LastIndex(rest, " (")
	if idx == -1 {
		return rest, ""
	}
	return rest[:idx], rest[idx+2 : len(rest)-1]
}
