package search

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Intent is a coarse question category used to pick the result size and the
// answer instruction.
type Intent string

const (
	IntentProcedural Intent = "procedural"
	IntentReasoning  Intent = "reasoning"
	IntentComparison Intent = "comparison"
	IntentDefinition Intent = "definition"
	IntentGeneral    Intent = "general"
)

// DefaultIntentCacheSize bounds the classification cache.
const DefaultIntentCacheSize = 1000

// Intents returns every label in rule priority order, general last.
func Intents() []Intent {
	return []Intent{IntentComparison, IntentReasoning, IntentProcedural, IntentDefinition, IntentGeneral}
}

// Valid reports whether i is one of the defined labels.
func (i Intent) Valid() bool {
	for _, known := range Intents() {
		if i == known {
			return true
		}
	}
	return false
}

// Instruction is the answer-style directive for the intent.
func (i Intent) Instruction() string {
	switch i {
	case IntentProcedural:
		return "Explain the process step by step in clear language."
	case IntentReasoning:
		return "Explain the reasoning, purpose, and consequences."
	case IntentComparison:
		return "Compare the concepts, highlighting differences and use cases."
	case IntentDefinition:
		return "Provide a clear and concise definition with context."
	default:
		return "Provide a clear and helpful explanation."
	}
}

// SectionHints lists the manual-page sections most likely to answer the
// intent, used to steer command-focused query variants.
func (i Intent) SectionHints() []string {
	switch i {
	case IntentDefinition:
		return []string{"NAME"}
	case IntentProcedural:
		return []string{"DESCRIPTION", "OPTIONS", "EXAMPLES"}
	case IntentReasoning:
		return []string{"NOTES", "DESCRIPTION"}
	case IntentComparison:
		return []string{"DESCRIPTION", "NOTES"}
	default:
		return []string{"DESCRIPTION", "OPTIONS"}
	}
}

// DefaultTopK returns the per-intent default result sizes.
func DefaultTopK() map[Intent]int {
	return map[Intent]int{
		IntentProcedural: 4,
		IntentReasoning:  4,
		IntentComparison: 6,
		IntentDefinition: 4,
		IntentGeneral:    4,
	}
}

// Compiled classification rules, evaluated in order.
var (
	comparisonPattern = regexp.MustCompile(`\b(difference|differences|differ|differs|compare|compared|comparing|comparison|vs|versus)\b|\bbetter than\b`)
	reasoningPattern  = regexp.MustCompile(`\b(why|because|reason|reasons)\b|\bpurpose of\b|\bshould i\b`)
	proceduralPattern = regexp.MustCompile(`^how\b|\bhow (to|do|can|would|should)\b`)
	definitionPattern = regexp.MustCompile(`\b(what is|what are|what does|what's|define|definition of|meaning of|explain)\b`)
)

// imperativeVerbs start procedural requests ("undo the last commit").
var imperativeVerbs = map[string]struct{}{
	"add": {}, "apply": {}, "change": {}, "checkout": {}, "clean": {}, "clone": {},
	"commit": {}, "configure": {}, "create": {}, "delete": {}, "discard": {}, "fetch": {},
	"find": {}, "fix": {}, "ignore": {}, "install": {}, "list": {}, "make": {},
	"merge": {}, "move": {}, "pull": {}, "push": {}, "rebase": {}, "recover": {},
	"remove": {}, "rename": {}, "reset": {}, "restore": {}, "revert": {}, "run": {},
	"set": {}, "setup": {}, "show": {}, "squash": {}, "stash": {}, "switch": {},
	"tag": {}, "undo": {}, "unstage": {}, "update": {}, "use": {},
}

type intentRule struct {
	intent  Intent
	matches func(q string) bool
}

var intentRules = []intentRule{
	{IntentComparison, comparisonPattern.MatchString},
	{IntentReasoning, reasoningPattern.MatchString},
	{IntentProcedural, func(q string) bool {
		if proceduralPattern.MatchString(q) {
			return true
		}
		fields := strings.Fields(q)
		if len(fields) == 0 {
			return false
		}
		_, ok := imperativeVerbs[fields[0]]
		return ok
	}},
	{IntentDefinition, definitionPattern.MatchString},
}

// ClassifyIntent applies the ordered rules to question. It is total: any
// input, including the empty string, maps to a label.
func ClassifyIntent(question string) Intent {
	q := normalizeQuestion(question)
	for _, rule := range intentRules {
		if rule.matches(q) {
			return rule.intent
		}
	}
	return IntentGeneral
}

// normalizeQuestion lowercases, folds typographic apostrophes to ASCII,
// drops punctuation other than apostrophes and hyphens, and collapses
// whitespace.
func normalizeQuestion(question string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(question) {
		switch {
		case r == '\u2018', r == '\u2019', r == '\u02bc':
			b.WriteRune('\'')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'', r == '-', r > 0x7f:
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// IntentClassifier memoizes ClassifyIntent and maps intents to their default
// result size.
type IntentClassifier struct {
	topK  map[Intent]int
	cache *lru.Cache[string, Intent]
}

// NewIntentClassifier creates a classifier. Missing or non-positive topK
// entries fall back to DefaultTopK.
func NewIntentClassifier(topK map[Intent]int, cacheSize int) *IntentClassifier {
	if cacheSize <= 0 {
		cacheSize = DefaultIntentCacheSize
	}
	cache, _ := lru.New[string, Intent](cacheSize)

	merged := DefaultTopK()
	for intent, k := range topK {
		if k > 0 {
			merged[intent] = k
		}
	}

	return &IntentClassifier{topK: merged, cache: cache}
}

// Classify returns the intent for question.
func (c *IntentClassifier) Classify(question string) Intent {
	key := normalizeQuestion(question)
	if intent, ok := c.cache.Get(key); ok {
		return intent
	}
	intent := ClassifyIntent(question)
	c.cache.Add(key, intent)
	return intent
}

// TopK returns the default result size for intent.
func (c *IntentClassifier) TopK(intent Intent) int {
	if k, ok := c.topK[intent]; ok {
		return k
	}
	return c.topK[IntentGeneral]
}
