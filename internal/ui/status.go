package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes the published index and its environment.
type StatusInfo struct {
	DataDir     string    `json:"data_dir"`
	Generation  string    `json:"generation,omitempty"`
	Generations []string  `json:"generations,omitempty"`
	Revision    string    `json:"revision,omitempty"`
	Model       string    `json:"model,omitempty"`
	Dimensions  int       `json:"dimensions,omitempty"`
	Chunks      int       `json:"chunks"`
	CreatedAt   time.Time `json:"created_at,omitzero"`

	// Artifact sizes in bytes.
	VectorSize   int64 `json:"vector_size"`
	MetadataSize int64 `json:"metadata_size"`

	// Error is set when the published generation cannot be read.
	Error string `json:"error,omitempty"`

	EmbedderType   string `json:"embedder_type"`
	EmbedderModel  string `json:"embedder_model,omitempty"`
	EmbedderStatus string `json:"embedder_status"` // "ready", "offline"
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes status as aligned text.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status: "+info.DataDir))

	switch {
	case info.Error != "":
		_, _ = fmt.Fprintf(r.out, "  Index:      %s\n", r.styles.Error.Render("corrupt"))
		_, _ = fmt.Fprintf(r.out, "              %s\n", info.Error)
	case info.Generation == "":
		_, _ = fmt.Fprintf(r.out, "  Index:      %s\n", r.styles.Warning.Render("not built (run 'docrag ingest')"))
	default:
		_, _ = fmt.Fprintf(r.out, "  Generation: %s\n", info.Generation)
		_, _ = fmt.Fprintf(r.out, "  Revision:   %s\n", info.Revision)
		_, _ = fmt.Fprintf(r.out, "  Chunks:     %d\n", info.Chunks)
		_, _ = fmt.Fprintf(r.out, "  Model:      %s (%d dims)\n", info.Model, info.Dimensions)
		if !info.CreatedAt.IsZero() {
			_, _ = fmt.Fprintf(r.out, "  Built:      %s\n", formatTime(info.CreatedAt))
		}
		_, _ = fmt.Fprintf(r.out, "  Storage:    %s vectors, %s metadata\n",
			FormatBytes(info.VectorSize), FormatBytes(info.MetadataSize))
		if len(info.Generations) > 1 {
			_, _ = fmt.Fprintf(r.out, "  Retained:   %d generations\n", len(info.Generations))
		}
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Type:   %s\n", info.EmbedderType)
	if info.EmbedderModel != "" {
		_, _ = fmt.Fprintf(r.out, "    Model:  %s\n", info.EmbedderModel)
	}
	_, _ = fmt.Fprintf(r.out, "    Status: %s\n", r.renderStatus(info.EmbedderStatus))
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "offline":
		return r.styles.Warning.Render(status)
	default:
		return status
	}
}

// formatTime renders t relative to now, or as a date past a week.
func formatTime(t time.Time) string {
	diff := time.Since(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
