package search

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/registry"
)

// Expansion limits.
const (
	DefaultMaxVariants = 4
	MinVariants        = 2
	MaxVariants        = 4
	DefaultSubject     = "git"
)

// DocSynonyms maps everyday wording to the vocabulary the manual pages use.
var DocSynonyms = map[string]string{
	"undo":      "revert",
	"undoing":   "reverting",
	"delete":    "remove",
	"erase":     "remove",
	"copy":      "clone",
	"download":  "fetch",
	"upload":    "push",
	"publish":   "push",
	"save":      "commit",
	"combine":   "merge",
	"join":      "merge",
	"discard":   "reset",
	"rewind":    "reset",
	"label":     "tag",
	"shelve":    "stash",
	"history":   "log",
	"settings":  "configuration",
	"setting":   "configuration",
	"options":   "flags",
	"rename":    "move",
	"switch":    "checkout",
	"unstage":   "restore",
	"changes":   "diff",
	"tidy":      "clean",
	"configure": "config",
}

// commandStopWords are words that follow the subject without naming a command
// ("how does git work").
var commandStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "do": {}, "does": {}, "for": {}, "in": {},
	"is": {}, "of": {}, "or": {}, "the": {}, "to": {}, "versus": {}, "vs": {},
	"with": {}, "work": {}, "works": {},
}

var synonymWordPattern = regexp.MustCompile(`[A-Za-z]+`)

// QueryExpander produces deterministic query variants: the original question,
// command-focused variants steered by the intent's section hints, a synonym
// substitution, and an analyzed keyword form.
type QueryExpander struct {
	subject     string
	commandRe   *regexp.Regexp
	maxVariants int
	synonyms    map[string]string
	analyzer    analysis.Analyzer
}

// QueryExpanderOption configures the query expander.
type QueryExpanderOption func(*QueryExpander)

// WithMaxVariants caps the variants returned, original included.
func WithMaxVariants(n int) QueryExpanderOption {
	return func(e *QueryExpander) {
		if n > 0 {
			e.maxVariants = n
		}
	}
}

// WithSubject sets the tool name commands are extracted after ("git").
func WithSubject(subject string) QueryExpanderOption {
	return func(e *QueryExpander) {
		if subject = strings.ToLower(strings.TrimSpace(subject)); subject != "" {
			e.subject = subject
		}
	}
}

// WithCustomSynonyms adds or overrides synonym mappings.
func WithCustomSynonyms(synonyms map[string]string) QueryExpanderOption {
	return func(e *QueryExpander) {
		for k, v := range synonyms {
			e.synonyms[strings.ToLower(k)] = v
		}
	}
}

// NewQueryExpander creates an expander using bleve's English analyzer for the
// keyword variant.
func NewQueryExpander(opts ...QueryExpanderOption) (*QueryExpander, error) {
	e := &QueryExpander{
		subject:     DefaultSubject,
		maxVariants: DefaultMaxVariants,
		synonyms:    make(map[string]string, len(DocSynonyms)),
	}
	for k, v := range DocSynonyms {
		e.synonyms[k] = v
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.maxVariants < MinVariants || e.maxVariants > MaxVariants {
		return nil, fmt.Errorf("max variants must be between %d and %d, got %d", MinVariants, MaxVariants, e.maxVariants)
	}

	analyzer, err := registry.NewCache().AnalyzerNamed(en.AnalyzerName)
	if err != nil {
		return nil, fmt.Errorf("failed to load english analyzer: %w", err)
	}
	e.analyzer = analyzer
	e.commandRe = regexp.MustCompile(`\b` + regexp.QuoteMeta(e.subject) + `[\s-]+([a-z][a-z0-9-]*)`)

	return e, nil
}

// Commands returns the distinct commands named after the subject, in order
// of appearance ("git merge vs git rebase" → merge, rebase).
func (e *QueryExpander) Commands(question string) []string {
	var commands []string
	seen := make(map[string]bool)
	for _, m := range e.commandRe.FindAllStringSubmatch(strings.ToLower(question), -1) {
		cmd := strings.TrimRight(m[1], "-")
		if _, stop := commandStopWords[cmd]; stop || cmd == "" || seen[cmd] {
			continue
		}
		seen[cmd] = true
		commands = append(commands, cmd)
	}
	return commands
}

// Keywords runs question through the English analyzer: lowercased,
// stop words removed, stemmed.
func (e *QueryExpander) Keywords(question string) []string {
	tokens := e.analyzer.Analyze([]byte(question))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, string(tok.Term))
	}
	return terms
}

// Expand returns the original question followed by up to maxVariants-1
// rewritten forms, deduplicated case-insensitively. Comparison questions
// naming several commands get one command variant each.
func (e *QueryExpander) Expand(question string, intent Intent) []string {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil
	}

	variants := []string{question}
	seen := map[string]bool{strings.ToLower(question): true}
	add := func(v string) {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] || len(variants) >= e.maxVariants {
			return
		}
		seen[key] = true
		variants = append(variants, v)
	}

	commands := e.Commands(question)
	if intent != IntentComparison && len(commands) > 1 {
		commands = commands[:1]
	}
	hints := strings.Join(intent.SectionHints(), " ")
	for _, cmd := range commands {
		add(fmt.Sprintf("%s %s %s", e.subject, cmd, hints))
	}

	add(e.substituteSynonyms(question))
	add(strings.Join(e.Keywords(question), " "))

	return variants
}

// substituteSynonyms replaces mapped words; it returns "" when nothing changed.
func (e *QueryExpander) substituteSynonyms(question string) string {
	changed := false
	out := synonymWordPattern.ReplaceAllStringFunc(question, func(word string) string {
		if syn, ok := e.synonyms[strings.ToLower(word)]; ok {
			changed = true
			return syn
		}
		return word
	})
	if !changed {
		return ""
	}
	return out
}
