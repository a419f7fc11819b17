// Package output formats command-line results: status lines, answers and
// retrieval listings.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/docrag/internal/answer"
	"github.com/Aman-CERP/docrag/internal/search"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Status("✓", fmt.Sprintf(format, args...))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Status("⚠", fmt.Sprintf(format, args...))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Status("✗", fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Answer prints an answer followed by its numbered sources.
func (w *Writer) Answer(resp *answer.Response) {
	_, _ = fmt.Fprintln(w.out, strings.TrimSpace(resp.Answer))
	if len(resp.Sources) == 0 {
		return
	}
	w.Newline()
	_, _ = fmt.Fprintf(w.out, "Sources (%s):\n", resp.Intent)
	for i, src := range resp.Sources {
		_, _ = fmt.Fprintf(w.out, "  [%d] %s (%.3f)\n", i+1, location(src.File, src.Section, src.Command), src.Score)
	}
}

// Retrieval prints ranked chunks with an indented snippet of each.
func (w *Writer) Retrieval(result *search.Result) {
	if len(result.Items) == 0 {
		w.Warningf("No matching documentation for %q", result.Question)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%d results (%s, %d variants)\n", len(result.Items), result.Intent, len(result.Variants))
	for _, item := range result.Items {
		if item.Chunk == nil {
			continue
		}
		w.Newline()
		_, _ = fmt.Fprintf(w.out, "%d. %s (%.3f)\n", item.Rank, location(item.Source(), item.Section(), item.Command()), item.Score)
		for _, line := range strings.Split(answer.Snippet(item.Chunk.Content()), "\n") {
			_, _ = fmt.Fprintf(w.out, "   %s\n", line)
		}
	}
}

func location(file, section, command string) string {
	loc := file
	if section != "" {
		loc += " § " + section
	}
	if command != "" {
		loc = command + ": " + loc
	}
	return loc
}
