package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"soccode/internal/classify"
	"soccode/internal/parser"
)

var (
	classifyPrompt      string
	classifyQuestion    string
	classifyAnswer      string
	classifyIndex       string
	classifyK           int
	classifyModel       string
	classifyCandidates  []string
	classifyInteractive bool
	classifyRaters      int
	classifyTimeout     time.Duration
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a job description into a SOC code",
	Long: `Classifies a free-text job description into a SOC code.

The answer text is embedded, a candidate shortlist is retrieved from the
named index, and the model's response is parsed under the classification
grammar. With --interactive, follow-up questions from the model are
relayed on stdin/stdout until the exchange reaches a terminal result.

With --raters N, the same request is classified N times concurrently and
the independent ratings are printed as a coder set ready for adjudication.

Example:
  soccode classify --prompt classify_prompt.txt \
    --question "What is your job title?" \
    --answer "Systems developer" --index soc4d --k 10`,
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyPrompt, "prompt", "", "System prompt template (literal text or file path)")
	classifyCmd.Flags().StringVar(&classifyQuestion, "question", "What was your main job over the last seven days?", "Initial question asked of the respondent")
	classifyCmd.Flags().StringVar(&classifyAnswer, "answer", "", "The respondent's answer to classify")
	classifyCmd.Flags().StringVar(&classifyIndex, "index", "", "Vector index to retrieve candidates from (default from config)")
	classifyCmd.Flags().IntVar(&classifyK, "k", 0, "Number of candidates to retrieve (default from config)")
	classifyCmd.Flags().StringVar(&classifyModel, "model", "", "Completion model (default from config)")
	classifyCmd.Flags().StringSliceVar(&classifyCandidates, "candidates", nil, "Precomputed candidates, bypassing retrieval")
	classifyCmd.Flags().BoolVarP(&classifyInteractive, "interactive", "i", false, "Relay follow-up questions on stdin/stdout")
	classifyCmd.Flags().IntVar(&classifyRaters, "raters", 0, "Run N independent raters and print their ratings")
	classifyCmd.Flags().DurationVar(&classifyTimeout, "timeout", 5*time.Minute, "Overall request timeout")
	classifyCmd.MarkFlagRequired("answer")
}

func runClassify(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(classifyPrompt)
	if err != nil {
		return err
	}

	svcs, err := buildServices()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), classifyTimeout)
	defer cancel()

	req := classify.Request{
		InitialQuestion: classifyQuestion,
		InitialAnswer:   classifyAnswer,
		SystemPrompt:    prompt,
		Index:           classifyIndex,
		K:               classifyK,
		Model:           classifyModel,
		Candidates:      classifyCandidates,
	}

	if classifyRaters > 0 {
		ratings, err := svcs.service.Panel(ctx, req, classifyRaters)
		if err != nil {
			return err
		}
		return printJSON(ratings)
	}

	result, state, err := svcs.service.Classify(ctx, req)
	if err != nil {
		return err
	}

	if classifyInteractive {
		result, err = followupLoop(ctx, svcs.service, result, state)
		if err != nil {
			return err
		}
	}
	return printJSON(result)
}

// followupLoop relays the model's follow-up questions to the respondent until
// the exchange ends. The respondent can stop early with an empty line.
func followupLoop(ctx context.Context, svc *classify.Service, result *parser.ClassificationResult, state *classify.State) (*parser.ClassificationResult, error) {
	reader := bufio.NewReader(os.Stdin)

	for result.NeedsFollowup || result.Kind == parser.KindRequery {
		fmt.Println(result.RawText)
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return result, nil
		}
		answer := strings.TrimSpace(line)
		if answer == "" {
			return result, nil
		}

		result, state, err = svc.ContinueFollowup(ctx, state, answer)
		if err != nil {
			return nil, err
		}
		if result.Kind == parser.KindTerminal || result.Kind == parser.KindMalformed || result.Kind == parser.KindNoMatch {
			return result, nil
		}
	}
	return result, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
