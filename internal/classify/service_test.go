package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soccode/internal/conversation"
	"soccode/internal/parser"
	"soccode/internal/retrieval"
)

const testTemplate = "Classify the respondent into one of these occupations:\n{K_soc}"

// mockRetriever serves a fixed candidate list and records every retrieval.
type mockRetriever struct {
	mu         sync.Mutex
	candidates []string
	err        error

	calls []struct {
		text  string
		index string
		k     int
	}
}

func (m *mockRetriever) Retrieve(ctx context.Context, text, index string, k int) (*retrieval.CandidateSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, struct {
		text  string
		index string
		k     int
	}{text, index, k})
	if m.err != nil {
		return nil, m.err
	}
	return &retrieval.CandidateSet{Index: index, K: k, Candidates: m.candidates}, nil
}

// mockClient replays scripted responses and records each conversation it saw.
type mockClient struct {
	mu        sync.Mutex
	responses []string
	calls     []conversation.Conversation
	models    []string
}

func (m *mockClient) Complete(ctx context.Context, model string, conv conversation.Conversation) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, conv)
	m.models = append(m.models, model)
	if len(m.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func tenCodes() []string {
	codes := make([]string, 10)
	for i := range codes {
		codes[i] = fmt.Sprintf("29%02d", i+51)
	}
	return codes
}

func classifyRequest() Request {
	return Request{
		InitialQuestion: "What is your job title?",
		InitialAnswer:   "Systems developer",
		SystemPrompt:    testTemplate,
		Index:           "soc4d",
		K:               10,
		Model:           "gpt-4o-mini",
	}
}

func TestService_ClassifyTerminal(t *testing.T) {
	retriever := &mockRetriever{candidates: tenCodes()}
	client := &mockClient{responses: []string{
		"CGPT587: 2951 - Systems Developers; CONFIDENCE: 90; FOLLOWUP: FALSE",
	}}
	svc := NewService(retriever, client)

	result, state, err := svc.Classify(context.Background(), classifyRequest())
	require.NoError(t, err)

	assert.Equal(t, parser.KindTerminal, result.Kind)
	assert.Equal(t, "2951", result.Code)
	assert.Equal(t, "Systems Developers", result.Description)
	assert.Equal(t, 90, result.Confidence)
	assert.False(t, result.NeedsFollowup)

	require.Len(t, retriever.calls, 1)
	assert.Equal(t, "Systems developer", retriever.calls[0].text)
	assert.Equal(t, "soc4d", retriever.calls[0].index)
	assert.Equal(t, 10, retriever.calls[0].k)

	// System turn carries the serialized candidates; the initial Q/A follow.
	require.Len(t, client.calls, 1)
	conv := client.calls[0]
	require.Len(t, conv, 3)
	assert.Equal(t, conversation.RoleSystem, conv[0].Role)
	assert.Contains(t, conv[0].Text, "2951\n2952")
	assert.Equal(t, conversation.RoleAssistant, conv[1].Role)
	assert.Equal(t, "What is your job title?", conv[1].Text)
	assert.Equal(t, conversation.RoleUser, conv[2].Role)
	assert.Equal(t, "Systems developer", conv[2].Text)
	assert.Equal(t, "gpt-4o-mini", client.models[0])

	// No follow-up pending on a terminal answer.
	assert.Empty(t, state.PendingQuestion)
	assert.Equal(t, tenCodes(), state.Candidates)
}

func TestService_ClassifySuppliedCandidatesBypassRetrieval(t *testing.T) {
	retriever := &mockRetriever{err: errors.New("must not be called")}
	client := &mockClient{responses: []string{
		"CGPT587: 1330 - Example; CONFIDENCE: 70; FOLLOWUP: FALSE",
	}}
	svc := NewService(retriever, client)

	req := classifyRequest()
	req.Candidates = []string{"1330", "2951"}

	result, _, err := svc.Classify(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, parser.KindTerminal, result.Kind)
	assert.Empty(t, retriever.calls, "supplied candidates must bypass retrieval")
}

func TestService_ClassifyValidation(t *testing.T) {
	svc := NewService(&mockRetriever{}, &mockClient{})

	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"empty answer", func(r *Request) { r.InitialAnswer = "" }, "init_ans"},
		{"empty prompt", func(r *Request) { r.SystemPrompt = "" }, "sys_prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := classifyRequest()
			tt.mutate(&req)

			_, _, err := svc.Classify(context.Background(), req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestService_ClassifyTemplateErrorFailsFast(t *testing.T) {
	retriever := &mockRetriever{candidates: tenCodes()}
	client := &mockClient{}
	svc := NewService(retriever, client)

	req := classifyRequest()
	req.SystemPrompt = "Candidates: {K_soc}\nIndustry: {industry}"

	_, _, err := svc.Classify(context.Background(), req)
	var terr *conversation.TemplateError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "industry", terr.Placeholder)
	assert.Empty(t, client.calls, "template failure must precede the model call")
}

func TestService_ClassifyFollowupSetsPendingQuestion(t *testing.T) {
	raw := "CGPT587: 2951 - Systems Developers; CONFIDENCE: 40; FOLLOWUP: TRUE\nDo you manage a team?"
	retriever := &mockRetriever{candidates: tenCodes()}
	client := &mockClient{responses: []string{raw}}
	svc := NewService(retriever, client)

	result, state, err := svc.Classify(context.Background(), classifyRequest())
	require.NoError(t, err)
	assert.True(t, result.NeedsFollowup)
	assert.Equal(t, raw, state.PendingQuestion)
}

func TestService_ClassifyPlainTextKeepsQuestion(t *testing.T) {
	// A model reply with no sentinel at all is the model asking in plain
	// text; the question must survive into the next turn's assistant slot.
	question := "Could you describe your main duties in more detail?"
	retriever := &mockRetriever{candidates: tenCodes()}
	client := &mockClient{responses: []string{
		question,
		"CGPT587: 2951 - Systems Developers (90)",
	}}
	svc := NewService(retriever, client)

	result, state, err := svc.Classify(context.Background(), classifyRequest())
	require.NoError(t, err)
	assert.Equal(t, parser.KindNoMatch, result.Kind)
	require.Equal(t, question, state.PendingQuestion)

	_, next, err := svc.ContinueFollowup(context.Background(), state, "I design billing systems")
	require.NoError(t, err)

	require.Len(t, client.calls, 2)
	conv := client.calls[1]
	require.Len(t, conv, 5)
	assert.Equal(t, conversation.RoleAssistant, conv[3].Role)
	assert.Equal(t, question, conv[3].Text, "assistant turn must carry the plain-text question")
	assert.Equal(t, conversation.RoleUser, conv[4].Role)
	assert.Equal(t, "I design billing systems", conv[4].Text)

	require.Len(t, next.Followups, 1)
	assert.Equal(t, question, next.Followups[0].Question)
}

func TestService_ContinueFollowupAppendsTurns(t *testing.T) {
	retriever := &mockRetriever{candidates: tenCodes()}
	client := &mockClient{responses: []string{
		"CGPT587: 2951 - Systems Developers; CONFIDENCE: 40; FOLLOWUP: TRUE\nDo you manage a team?",
		"Thanks. CGPT587: 2952 - Development Managers (95)",
	}}
	svc := NewService(retriever, client)

	_, state, err := svc.Classify(context.Background(), classifyRequest())
	require.NoError(t, err)

	result, next, err := svc.ContinueFollowup(context.Background(), state, "Yes, a team of five")
	require.NoError(t, err)

	assert.Equal(t, parser.KindTerminal, result.Kind)
	assert.Equal(t, "2952", result.Code)
	assert.Equal(t, "Development Managers", result.Description)
	assert.Equal(t, 95, result.Confidence)

	// The resubmitted conversation carries the full exchange in order.
	require.Len(t, client.calls, 2)
	conv := client.calls[1]
	require.Len(t, conv, 5)
	assert.Equal(t, conversation.RoleAssistant, conv[3].Role)
	assert.Contains(t, conv[3].Text, "Do you manage a team?")
	assert.Equal(t, conversation.RoleUser, conv[4].Role)
	assert.Equal(t, "Yes, a team of five", conv[4].Text)

	require.Len(t, next.Followups, 1)
	assert.Equal(t, "Yes, a team of five", next.Followups[0].Answer)

	// The input state is untouched; the caller owns each snapshot.
	assert.Empty(t, state.Followups)
}

func TestService_ContinueFollowupRequery(t *testing.T) {
	retriever := &mockRetriever{candidates: []string{"2951", "2952"}}
	client := &mockClient{responses: []string{
		"CGPT-REQUERY: none of these candidates fit",
		"CGPT587: 2951 - Systems Developers (88)",
	}}
	svc := NewService(retriever, client)

	state := &State{
		Template:        testTemplate,
		InitialQuestion: "What is your job title?",
		InitialAnswer:   "Systems developer",
		Candidates:      []string{"1111", "2222"},
		Index:           "soc4d",
		K:               10,
		Model:           "gpt-4o-mini",
		PendingQuestion: "What industry are you in?",
	}

	result, next, err := svc.ContinueFollowup(context.Background(), state, "Financial software")
	require.NoError(t, err)

	// Exactly one re-retrieval, keyed on the most recent answer.
	require.Len(t, retriever.calls, 1)
	assert.Equal(t, "Financial software", retriever.calls[0].text)
	assert.Equal(t, "soc4d", retriever.calls[0].index)

	// The resubmission renders the refreshed candidates into the system turn.
	require.Len(t, client.calls, 2)
	assert.Contains(t, client.calls[1][0].Text, "2951\n2952")
	assert.NotContains(t, client.calls[1][0].Text, "1111")

	assert.Equal(t, parser.KindTerminal, result.Kind)
	assert.Equal(t, "2951", result.Code)
	assert.Equal(t, []string{"2951", "2952"}, next.Candidates)
}

func TestService_ContinueFollowupSecondRequerySurfaced(t *testing.T) {
	retriever := &mockRetriever{candidates: []string{"2951"}}
	client := &mockClient{responses: []string{
		"CGPT-REQUERY: still no fit",
		"CGPT-REQUERY: these do not match either",
	}}
	svc := NewService(retriever, client)

	state := &State{
		Template:        testTemplate,
		InitialAnswer:   "Systems developer",
		Candidates:      []string{"1111"},
		Index:           "soc4d",
		K:               10,
		PendingQuestion: "What industry?",
	}

	result, _, err := svc.ContinueFollowup(context.Background(), state, "Finance")
	require.NoError(t, err)

	// One re-retrieval per model response; the second requery goes to the
	// caller, prefix stripped.
	require.Len(t, retriever.calls, 1)
	assert.Equal(t, parser.KindRequery, result.Kind)
	assert.False(t, strings.Contains(result.RawText, "CGPT-REQUERY:"))
	assert.Contains(t, result.RawText, "these do not match either")
}

func TestService_ContinueFollowupValidation(t *testing.T) {
	svc := NewService(&mockRetriever{}, &mockClient{})

	_, _, err := svc.ContinueFollowup(context.Background(), nil, "answer")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, _, err = svc.ContinueFollowup(context.Background(), &State{}, "")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "answer", verr.Field)
}

func TestService_PanelRunsIndependentRaters(t *testing.T) {
	retriever := &mockRetriever{candidates: tenCodes()}
	client := &mockClient{responses: []string{
		"CGPT587: 2951 - Systems Developers; CONFIDENCE: 90; FOLLOWUP: FALSE",
		"CGPT587: 2951 - Systems Developers; CONFIDENCE: 85; FOLLOWUP: FALSE",
		"CGPT587: 2952 - Development Managers; CONFIDENCE: 60; FOLLOWUP: FALSE",
	}}
	svc := NewService(retriever, client)

	ratings, err := svc.Panel(context.Background(), classifyRequest(), 3)
	require.NoError(t, err)
	require.Len(t, ratings, 3)

	for i, rating := range ratings {
		assert.Equal(t, fmt.Sprintf("rater-%d", i+1), rating.Coder)
		assert.Equal(t, parser.KindTerminal, rating.Result.Kind)
	}
}

func TestService_PanelTooFewRaters(t *testing.T) {
	svc := NewService(&mockRetriever{}, &mockClient{})

	_, err := svc.Panel(context.Background(), classifyRequest(), 1)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
