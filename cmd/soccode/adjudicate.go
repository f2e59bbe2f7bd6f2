package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"soccode/internal/adjudicate"
)

var (
	adjudicatePrompt   string
	adjudicateQuestion string
	adjudicateAnswer   string
	adjudicateCoders   string
	adjudicateSelf     bool
	adjudicateSelfCode string
	adjudicateSelfDesc string
	adjudicateModel    string
	adjudicateTimeout  time.Duration
)

var adjudicateCmd = &cobra.Command{
	Use:   "adjudicate",
	Short: "Reconcile multiple classifications into one decision",
	Long: `Reconciles two or more independent classifications of the same
respondent into a single decision with a justification and a hypothesis
for the disagreement.

Coders are supplied as a JSON file (or inline JSON):

  [{"id": "model-a", "classification": "2951"},
   {"id": "model-b", "classification": "2952", "description": "Development Managers"}]

With --include-self, the respondent's own classification is appended as a
synthetic "respondent" entry.

Example:
  soccode adjudicate --prompt adjudicate_prompt.txt \
    --question "What is your job title?" --answer "Systems developer" \
    --coders ratings.json --include-self --self-code 2951`,
	RunE: runAdjudicate,
}

func init() {
	adjudicateCmd.Flags().StringVar(&adjudicatePrompt, "prompt", "", "Adjudication prompt template (literal text or file path)")
	adjudicateCmd.Flags().StringVar(&adjudicateQuestion, "question", "What was your main job over the last seven days?", "Initial question asked of the respondent")
	adjudicateCmd.Flags().StringVar(&adjudicateAnswer, "answer", "", "The respondent's answer")
	adjudicateCmd.Flags().StringVar(&adjudicateCoders, "coders", "", "Coder entries as JSON (literal or file path)")
	adjudicateCmd.Flags().BoolVar(&adjudicateSelf, "include-self", false, "Append the respondent's self-classification")
	adjudicateCmd.Flags().StringVar(&adjudicateSelfCode, "self-code", "", "The respondent's own classification code")
	adjudicateCmd.Flags().StringVar(&adjudicateSelfDesc, "self-description", "", "Description for the respondent's classification")
	adjudicateCmd.Flags().StringVar(&adjudicateModel, "model", "", "Completion model (default from config)")
	adjudicateCmd.Flags().DurationVar(&adjudicateTimeout, "timeout", 5*time.Minute, "Overall request timeout")
	adjudicateCmd.MarkFlagRequired("coders")
}

func runAdjudicate(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(adjudicatePrompt)
	if err != nil {
		return err
	}

	coders, err := readCoders(adjudicateCoders)
	if err != nil {
		return err
	}

	svcs, err := buildServices()
	if err != nil {
		return err
	}
	adj := adjudicate.NewAdjudicator(svcs.client)

	ctx, cancel := context.WithTimeout(cmd.Context(), adjudicateTimeout)
	defer cancel()

	result, err := adj.Adjudicate(ctx, adjudicate.Request{
		Prompt:          prompt,
		InitialQuestion: adjudicateQuestion,
		InitialAnswer:   adjudicateAnswer,
		Coders:          coders,
		IncludeSelf:     adjudicateSelf,
		SelfCode:        adjudicateSelfCode,
		SelfDescription: adjudicateSelfDesc,
		Model:           adjudicateModel,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

// readCoders resolves a coders argument: a path to an existing file is read,
// anything else is parsed as inline JSON.
func readCoders(arg string) ([]adjudicate.CoderEntry, error) {
	data := []byte(arg)
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		data, err = os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read coders file: %w", err)
		}
	}

	var coders []adjudicate.CoderEntry
	if err := json.Unmarshal(data, &coders); err != nil {
		return nil, fmt.Errorf("failed to parse coders: %w", err)
	}
	return coders, nil
}
