// Package classify drives the classification exchange: assemble the prompt,
// call the model, parse the response, and manage the follow-up and requery
// transitions across turns. The service is long-lived; each request carries
// its own conversation state.
package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"soccode/internal/completion"
	"soccode/internal/conversation"
	"soccode/internal/logging"
	"soccode/internal/parser"
	"soccode/internal/retrieval"
)

// ValidationError reports malformed caller input, surfaced before any
// provider call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Request is one classification request. Candidates, when supplied, bypass
// retrieval entirely.
type Request struct {
	InitialQuestion string   `json:"init_q"`
	InitialAnswer   string   `json:"init_ans"`
	SystemPrompt    string   `json:"sys_prompt"`
	Index           string   `json:"index,omitempty"`
	K               int      `json:"k,omitempty"`
	Model           string   `json:"model,omitempty"`
	Candidates      []string `json:"soc_cands,omitempty"`
}

// State is the full conversation state for one exchange, serialized at the
// system boundary and resubmitted with each follow-up turn. The service never
// assumes in-process persistence of prior turns.
type State struct {
	Template        string            `json:"template"`
	InitialQuestion string            `json:"init_q"`
	InitialAnswer   string            `json:"init_ans"`
	Followups       []conversation.QA `json:"followups,omitempty"`
	Candidates      []string          `json:"candidates"`
	Index           string            `json:"index"`
	K               int               `json:"k"`
	Model           string            `json:"model"`

	// PendingQuestion is the model text awaiting the respondent's answer.
	PendingQuestion string `json:"pending_question,omitempty"`
}

// CandidateRetriever resolves free text into a candidate shortlist.
// *retrieval.Retriever satisfies it.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, text, index string, k int) (*retrieval.CandidateSet, error)
}

// Service is the conversation controller. Constructed once at process start;
// the caches inside the retriever are its only cross-request state.
type Service struct {
	retriever CandidateRetriever
	client    completion.Client
}

// NewService creates a classification service over the given collaborators.
func NewService(retriever CandidateRetriever, client completion.Client) *Service {
	return &Service{retriever: retriever, client: client}
}

// Classify runs the initial turn of an exchange: resolve candidates, assemble
// the conversation, call the model, and parse with the classify grammar. The
// returned State carries everything a later ContinueFollowup call needs.
func (s *Service) Classify(ctx context.Context, req Request) (*parser.ClassificationResult, *State, error) {
	if err := validateRequest(req); err != nil {
		return nil, nil, err
	}

	requestID := uuid.NewString()
	startTime := time.Now()
	logging.Classify("[%s] classify: index=%s k=%d model=%s answer_len=%d",
		requestID, req.Index, req.K, req.Model, len(req.InitialAnswer))

	candidates := req.Candidates
	if len(candidates) == 0 {
		set, err := s.retriever.Retrieve(ctx, req.InitialAnswer, req.Index, req.K)
		if err != nil {
			return nil, nil, err
		}
		candidates = set.Candidates
	}

	state := &State{
		Template:        req.SystemPrompt,
		InitialQuestion: req.InitialQuestion,
		InitialAnswer:   req.InitialAnswer,
		Candidates:      candidates,
		Index:           req.Index,
		K:               req.K,
		Model:           req.Model,
	}

	raw, err := s.submit(ctx, state)
	if err != nil {
		return nil, nil, err
	}

	result := parser.ParseClassify(raw)
	if result.NeedsFollowup || result.Kind == parser.KindNoMatch {
		// A NoMatch response is the model asking in plain text; keep the
		// question so the next turn pairs it with the respondent's answer.
		state.PendingQuestion = raw
	}

	logging.Classify("[%s] classify: kind=%s code=%s confidence=%d followup=%t in %v",
		requestID, result.Kind, result.Code, result.Confidence, result.NeedsFollowup, time.Since(startTime))
	return &result, state, nil
}

// ContinueFollowup appends the respondent's answer to the exchange and
// resubmits, parsing with the followup grammar. A requery response triggers
// exactly one candidate re-retrieval using the most recent answer before
// resubmitting; a second consecutive requery is surfaced to the caller, who
// controls loop termination by choosing not to call again.
func (s *Service) ContinueFollowup(ctx context.Context, state *State, newAnswer string) (*parser.ClassificationResult, *State, error) {
	if state == nil {
		return nil, nil, &ValidationError{Field: "state", Reason: "must not be empty"}
	}
	if newAnswer == "" {
		return nil, nil, &ValidationError{Field: "answer", Reason: "must not be empty"}
	}

	requestID := uuid.NewString()
	startTime := time.Now()
	logging.Classify("[%s] followup: turns=%d answer_len=%d", requestID, len(state.Followups)+1, len(newAnswer))

	next := state.clone()
	next.Followups = append(next.Followups, conversation.QA{
		Question: state.PendingQuestion,
		Answer:   newAnswer,
	})
	next.PendingQuestion = ""

	conv, err := next.assemble()
	if err != nil {
		return nil, nil, err
	}
	raw, err := s.client.Complete(ctx, next.Model, conv)
	if err != nil {
		return nil, nil, err
	}

	result := parser.ParseFollowup(raw)
	if result.Kind == parser.KindRequery {
		logging.Classify("[%s] requery requested, re-retrieving from %s", requestID, next.Index)

		set, err := s.retriever.Retrieve(ctx, conv.LastUserText(), next.Index, next.K)
		if err != nil {
			return nil, nil, err
		}
		next.Candidates = set.Candidates

		// Re-render only the system turn with the refreshed shortlist; the
		// exchanged turns stay exactly as submitted.
		system, err := conversation.RenderTemplate(next.Template, map[string]string{
			conversation.CandidatesPlaceholder: conversation.SerializeCandidates(next.Candidates),
		})
		if err != nil {
			return nil, nil, err
		}
		conv = conv.WithSystem(system)

		raw, err = s.client.Complete(ctx, next.Model, conv)
		if err != nil {
			return nil, nil, err
		}
		result = parser.ParseFollowup(raw)
	}

	if result.NeedsFollowup || result.Kind == parser.KindRequery || result.Kind == parser.KindNoMatch {
		next.PendingQuestion = result.RawText
	}

	logging.Classify("[%s] followup: kind=%s code=%s confidence=%d in %v",
		requestID, result.Kind, result.Code, result.Confidence, time.Since(startTime))
	return &result, next, nil
}

// submit assembles the full conversation from state and calls the model.
func (s *Service) submit(ctx context.Context, state *State) (string, error) {
	conv, err := state.assemble()
	if err != nil {
		return "", err
	}
	return s.client.Complete(ctx, state.Model, conv)
}

// assemble builds the full conversation the state describes.
func (st *State) assemble() (conversation.Conversation, error) {
	return conversation.Assemble(st.Template, st.Candidates,
		st.InitialQuestion, st.InitialAnswer, st.Followups)
}

func (st *State) clone() *State {
	next := *st
	next.Followups = append([]conversation.QA(nil), st.Followups...)
	next.Candidates = append([]string(nil), st.Candidates...)
	return &next
}

func validateRequest(req Request) error {
	if req.InitialAnswer == "" {
		return &ValidationError{Field: "init_ans", Reason: "must not be empty"}
	}
	if req.SystemPrompt == "" {
		return &ValidationError{Field: "sys_prompt", Reason: "must not be empty"}
	}
	return nil
}
