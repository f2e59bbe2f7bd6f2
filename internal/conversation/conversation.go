// Package conversation models the role-tagged message sequence sent to the
// language model and assembles it from a system prompt template, the initial
// question/answer pair, and any follow-up turns.
package conversation

import (
	"fmt"
	"regexp"
	"strings"
)

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Turn is a single role-tagged message.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Conversation is an ordered sequence of turns: one system turn, then
// alternating assistant/user pairs for asked/answered questions.
type Conversation []Turn

// QA is one asked/answered follow-up pair.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CandidatesPlaceholder is the template variable bound to the serialized
// candidate list.
const CandidatesPlaceholder = "K_soc"

// TemplateError reports a template placeholder that no supplied variable
// satisfies. Raised before any external call is made.
type TemplateError struct {
	Placeholder string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template references unsupplied placeholder {%s}", e.Placeholder)
}

// placeholderPattern matches {name} template variables. Brace pairs that do
// not form an identifier are left untouched.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// RenderTemplate substitutes {name} placeholders from vars. Every placeholder
// in the template must be supplied; extraneous vars are ignored.
func RenderTemplate(template string, vars map[string]string) (string, error) {
	var missing string
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		value, ok := vars[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return value
	})

	if missing != "" {
		return "", &TemplateError{Placeholder: missing}
	}
	return rendered, nil
}

// SerializeCandidates renders the shortlist one candidate per line.
func SerializeCandidates(candidates []string) string {
	return strings.Join(candidates, "\n")
}

// Assemble builds the full conversation: the system turn with the candidate
// list substituted into the template, then assistant(initialQuestion),
// user(initialAnswer), then each follow-up pair in caller order.
func Assemble(template string, candidates []string, initialQuestion, initialAnswer string, followups []QA) (Conversation, error) {
	system, err := RenderTemplate(template, map[string]string{
		CandidatesPlaceholder: SerializeCandidates(candidates),
	})
	if err != nil {
		return nil, err
	}

	conv := Conversation{
		{Role: RoleSystem, Text: system},
		{Role: RoleAssistant, Text: initialQuestion},
		{Role: RoleUser, Text: initialAnswer},
	}
	for _, qa := range followups {
		conv = append(conv,
			Turn{Role: RoleAssistant, Text: qa.Question},
			Turn{Role: RoleUser, Text: qa.Answer},
		)
	}
	return conv, nil
}

// AssembleWithVars behaves like Assemble but also substitutes extra template
// variables (e.g. job title or industry fields) alongside the candidate list.
func AssembleWithVars(template string, candidates []string, vars map[string]string, initialQuestion, initialAnswer string, followups []QA) (Conversation, error) {
	merged := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		merged[k] = v
	}
	merged[CandidatesPlaceholder] = SerializeCandidates(candidates)

	system, err := RenderTemplate(template, merged)
	if err != nil {
		return nil, err
	}

	conv := Conversation{
		{Role: RoleSystem, Text: system},
		{Role: RoleAssistant, Text: initialQuestion},
		{Role: RoleUser, Text: initialAnswer},
	}
	for _, qa := range followups {
		conv = append(conv,
			Turn{Role: RoleAssistant, Text: qa.Question},
			Turn{Role: RoleUser, Text: qa.Answer},
		)
	}
	return conv, nil
}

// LastUserText returns the most recent user turn's text, or the empty string
// when the conversation has none.
func (c Conversation) LastUserText() string {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role == RoleUser {
			return c[i].Text
		}
	}
	return ""
}

// WithSystem returns a copy of the conversation with the system turn's text
// replaced. Used when a requery re-renders the candidate list.
func (c Conversation) WithSystem(text string) Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	for i := range out {
		if out[i].Role == RoleSystem {
			out[i].Text = text
			break
		}
	}
	return out
}
