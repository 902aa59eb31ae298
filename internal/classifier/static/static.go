// Package static provides the classifier used when no model is configured.
package static

import (
	"context"
	"fmt"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

// Name identifies this classifier in logs and stored records.
const Name = "static"

// Classifier never produces a verdict. Submissions are still recorded with
// is_bot absent.
type Classifier struct{}

func New() *Classifier { return &Classifier{} }

func (c *Classifier) Name() string { return Name }

func (c *Classifier) Classify(ctx context.Context, in *domain.ClassifierInput) (*domain.Verdict, error) {
	return nil, fmt.Errorf("%w: no model configured", domain.ErrClassifierUnavailable)
}
