// Package adjudicate reconciles multiple independent classifications of the
// same respondent into one decision with a rationale. Coder-set preparation
// is pure data validation and defaulting; the single model call happens only
// after the set passes its shape invariants.
package adjudicate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"soccode/internal/completion"
	"soccode/internal/conversation"
	"soccode/internal/logging"
	"soccode/internal/parser"
)

const (
	// SelfCoderID identifies the respondent's own classification entry.
	SelfCoderID = "respondent"

	// NoCodeSentinel marks an absent self-classification code.
	NoCodeSentinel = "NONE"

	// CodersPlaceholder is the template variable bound to the serialized
	// coder set.
	CodersPlaceholder = "coders"

	noSelfClassification = "No self-classification provided"
)

// ValidationError reports a malformed coder set, surfaced before any model
// call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CoderEntry is one coder's classification of the respondent.
type CoderEntry struct {
	ID          string `json:"id"`
	Code        string `json:"classification"`
	Description string `json:"description,omitempty"`
}

// CoderSet is an ordered set of coder entries. Prepared sets hold at least
// two entries, each with a non-empty identifier, code, and description.
type CoderSet []CoderEntry

// Serialize renders the set one coder per line for prompt substitution.
func (s CoderSet) Serialize() string {
	lines := make([]string, 0, len(s))
	for _, entry := range s {
		lines = append(lines, fmt.Sprintf("%s: %s - %s", entry.ID, entry.Code, entry.Description))
	}
	return strings.Join(lines, "\n")
}

// PrepareCoders validates and defaults the coder set. Missing descriptions
// default to "SOC {code}". When includeSelf is true a synthetic respondent
// entry is appended, with selfCode defaulting to NoCodeSentinel and the
// description defaulting from the code. The two-entry minimum applies after
// the optional self entry.
func PrepareCoders(coders []CoderEntry, includeSelf bool, selfCode, selfDescription string) (CoderSet, error) {
	prepared := make(CoderSet, 0, len(coders)+1)
	for i, entry := range coders {
		if entry.ID == "" {
			return nil, &ValidationError{
				Field:  "coders",
				Reason: fmt.Sprintf("entry %d has no id", i),
			}
		}
		if entry.Code == "" {
			return nil, &ValidationError{
				Field:  "coders",
				Reason: fmt.Sprintf("entry %d (%s) has no classification", i, entry.ID),
			}
		}
		if entry.Description == "" {
			entry.Description = fmt.Sprintf("SOC %s", entry.Code)
		}
		prepared = append(prepared, entry)
	}

	if includeSelf {
		prepared = append(prepared, selfEntry(selfCode, selfDescription))
	}

	if len(prepared) < 2 {
		return nil, &ValidationError{
			Field:  "coders",
			Reason: fmt.Sprintf("need at least 2 entries, got %d", len(prepared)),
		}
	}
	return prepared, nil
}

func selfEntry(code, description string) CoderEntry {
	if code == "" {
		code = NoCodeSentinel
	}
	if description == "" {
		if code == NoCodeSentinel {
			description = noSelfClassification
		} else {
			description = fmt.Sprintf("SOC %s", code)
		}
	}
	return CoderEntry{ID: SelfCoderID, Code: code, Description: description}
}

// Request is one adjudication request. Prompt is the adjudication template
// with a {coders} placeholder for the serialized coder set.
type Request struct {
	Prompt          string       `json:"sys_prompt"`
	InitialQuestion string       `json:"init_q"`
	InitialAnswer   string       `json:"init_ans"`
	Coders          []CoderEntry `json:"coders"`
	IncludeSelf     bool         `json:"include_self,omitempty"`
	SelfCode        string       `json:"self_code,omitempty"`
	SelfDescription string       `json:"self_description,omitempty"`
	Model           string       `json:"model,omitempty"`
}

// Result packages the reconciled decision with the coder set that produced
// it. A malformed model response yields error markers in the embedded
// AdjudicationResult, never an error.
type Result struct {
	parser.AdjudicationResult
	Coders CoderSet `json:"coders"`
}

// Adjudicator runs the reconciliation exchange. It holds no state beyond the
// completion client.
type Adjudicator struct {
	client completion.Client
}

// NewAdjudicator creates an adjudicator over the given completion client.
func NewAdjudicator(client completion.Client) *Adjudicator {
	return &Adjudicator{client: client}
}

// Adjudicate prepares the coder set, renders it into the prompt, calls the
// model once, and parses the response with the adjudicate grammar.
func (a *Adjudicator) Adjudicate(ctx context.Context, req Request) (*Result, error) {
	if req.Prompt == "" {
		return nil, &ValidationError{Field: "sys_prompt", Reason: "must not be empty"}
	}

	coders, err := PrepareCoders(req.Coders, req.IncludeSelf, req.SelfCode, req.SelfDescription)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	startTime := time.Now()
	logging.Adjudicate("[%s] adjudicate: coders=%d model=%s", requestID, len(coders), req.Model)

	conv, err := conversation.AssembleWithVars(req.Prompt, nil,
		map[string]string{CodersPlaceholder: coders.Serialize()},
		req.InitialQuestion, req.InitialAnswer, nil)
	if err != nil {
		return nil, err
	}

	raw, err := a.client.Complete(ctx, req.Model, conv)
	if err != nil {
		return nil, err
	}

	result := parser.ParseAdjudicate(raw)
	logging.Adjudicate("[%s] adjudicate: code=%s malformed=%t in %v",
		requestID, result.Code, result.IsMalformed(), time.Since(startTime))
	return &Result{AdjudicationResult: result, Coders: coders}, nil
}
