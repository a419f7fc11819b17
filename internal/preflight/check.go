package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/source"
	"github.com/Aman-CERP/docrag/internal/store"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// embedderTimeout bounds the availability probe.
const embedderTimeout = 5 * time.Second

// Checker performs preflight validation checks.
type Checker struct {
	cfg      *config.Config
	embedder embed.Embedder
	verbose  bool
	output   io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithEmbedder enables the embedder check.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *Checker) {
		c.embedder = e
	}
}

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a Checker for cfg.
func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:    cfg,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check in order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	results := []CheckResult{
		c.CheckDocs(ctx),
		c.CheckWritePermissions(c.cfg.Index.DataDir),
		c.CheckDiskSpace(c.cfg.Index.DataDir),
	}
	if c.embedder != nil {
		results = append(results, c.CheckEmbedder(ctx))
	}
	return append(results, c.CheckIndex())
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "docrag doctor")
	_, _ = fmt.Fprintln(c.output, "=============")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "       %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var failures, warnings []string
	for _, r := range results {
		switch {
		case r.IsCritical():
			failures = append(failures, r.Name+": "+r.Message)
		case r.Status != StatusPass:
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}
	printList := func(label string, items []string) {
		if len(items) == 0 {
			return
		}
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d %s:\n", len(items), label)
		for _, item := range items {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", item)
		}
	}
	printList("error(s)", failures)
	printList("warning(s)", warnings)
}

// CheckDocs loads the document tree with the configured filters.
func (c *Checker) CheckDocs(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "docs",
		Required: true,
	}

	snap, err := source.Load(ctx, source.OptionsFromConfig(c.cfg.Docs, ""))
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	result.Details = fmt.Sprintf("root %s, revision %s", snap.Root, snap.Revision)
	switch {
	case len(snap.Documents) == 0:
		result.Status = StatusWarn
		result.Message = "no matching documents; ingest would publish an empty index"
	case len(snap.Skipped) > 0:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d documents, %d skipped", len(snap.Documents), len(snap.Skipped))
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d documents", len(snap.Documents))
	}
	return result
}

// CheckWritePermissions checks that the data directory can be created and
// written to.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	testFile := filepath.Join(path, ".docrag-preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckEmbedder probes the configured embedding provider. It is not
// required: queries degrade and ingest reports the failure itself.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedder"}

	ctx, cancel := context.WithTimeout(ctx, embedderTimeout)
	defer cancel()
	info := embed.GetInfo(ctx, c.embedder)
	result.Details = fmt.Sprintf("%s, %d dims", info.Model, info.Dimensions)
	if !info.Available {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s embedder is not reachable", info.Provider)
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s)", info.Provider, info.Model)
	return result
}

// CheckIndex loads the published generation, if any.
func (c *Checker) CheckIndex() CheckResult {
	result := CheckResult{Name: "index"}

	manager := store.NewManager(c.cfg.Index.DataDir, c.cfg.Index.KeepGenerations)
	if err := manager.Open(); err != nil {
		result.Status = StatusFail
		result.Message = "published generation does not load; run 'docrag ingest --force'"
		result.Details = err.Error()
		return result
	}
	gen := manager.Current()
	if gen == nil {
		result.Status = StatusWarn
		result.Message = "not built; run 'docrag ingest'"
		return result
	}

	info := gen.Index.Info()
	if c.embedder != nil && (info.Model != c.embedder.ModelName() || info.Dimensions != c.embedder.Dimensions()) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("built with %s (%d dims) but %s (%d dims) is configured; rebuild with --force",
			info.Model, info.Dimensions, c.embedder.ModelName(), c.embedder.Dimensions())
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("generation %s, %d chunks", gen.Name, info.Chunks)
	result.Details = "revision " + info.Revision
	return result
}
