package classify

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"soccode/internal/parser"
)

// Rating is one panel member's independent classification.
type Rating struct {
	Coder  string                      `json:"coder"`
	Result parser.ClassificationResult `json:"result"`
}

// Panel runs n independent classifications of the same request concurrently
// and returns one rating per rater, in rater order. The ratings feed the
// adjudicator as a coder set. Any provider failure fails the whole panel.
func (s *Service) Panel(ctx context.Context, req Request, n int) ([]Rating, error) {
	if n < 2 {
		return nil, &ValidationError{Field: "raters", Reason: fmt.Sprintf("need at least 2, got %d", n)}
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ratings := make([]Rating, n)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			result, _, err := s.Classify(ctx, req)
			if err != nil {
				return fmt.Errorf("rater %d: %w", i+1, err)
			}
			ratings[i] = Rating{Coder: fmt.Sprintf("rater-%d", i+1), Result: *result}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ratings, nil
}
