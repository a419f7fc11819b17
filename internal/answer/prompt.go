package answer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Aman-CERP/docrag/internal/search"
)

// Prompt is a chat prompt. System holds the grounding rules, User the
// instruction, context and question.
type Prompt struct {
	System string
	User   string
}

// String renders the prompt as a single completion-style text.
func (p Prompt) String() string {
	return p.System + "\n\n" + p.User
}

// BuildPrompt assembles the prompt for a question of the given intent.
// subject names the documented tool ("git" reads as "Git documentation").
func BuildPrompt(subject string, intent search.Intent, contextBlock, question string) Prompt {
	system := strings.Join([]string{
		fmt.Sprintf("You are an assistant specialized in %s documentation.", displaySubject(subject)),
		"Use only the provided context.",
		"If the answer cannot be derived from the context, say you do not know.",
	}, "\n")

	user := fmt.Sprintf("Instruction:\n%s\n\nContext:\n%s\n\nQuestion:\n%s\n\nAnswer:",
		intent.Instruction(), contextBlock, strings.TrimSpace(question))

	return Prompt{System: system, User: user}
}

func displaySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = search.DefaultSubject
	}
	r := []rune(subject)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
