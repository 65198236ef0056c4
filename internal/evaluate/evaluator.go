package evaluate

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/pkg/anthropic"
)

// Evaluator scores candidates with an Anthropic model.
type Evaluator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithModel sets the model id.
func WithModel(m string) Option {
	return func(e *Evaluator) {
		if m != "" {
			e.model = m
		}
	}
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int64) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// NewEvaluator creates an Evaluator backed by client.
func NewEvaluator(client anthropic.Client, opts ...Option) *Evaluator {
	e := &Evaluator{
		client:    client,
		model:     "claude-haiku-4-5-20251001",
		maxTokens: 500,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate asks the model to score one candidate. Transport errors are
// returned; an undecodable reply is not an error (see Decode).
func (e *Evaluator) Evaluate(ctx context.Context, c model.CandidateProfile) (model.Evaluation, error) {
	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		Temperature: &temp,
		Messages:    []anthropic.Message{{Role: "user", Content: BuildPrompt(c)}},
	})
	if err != nil {
		return model.Evaluation{}, eris.Wrapf(err, "evaluate: score %s", c.ProfileURL)
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
			sb.WriteString("\n")
		}
	}

	ev := Decode(sb.String())
	ev.InputTokens = resp.Usage.InputTokens
	ev.OutputTokens = resp.Usage.OutputTokens
	resp.Usage.LogCost(e.model, "evaluate")
	zap.L().Debug("evaluate: candidate scored",
		zap.String("profile_url", c.ProfileURL),
		zap.String("business_id", c.BusinessID),
		zap.Int("score", ev.Score),
		zap.String("category", string(ev.Category)),
		zap.String("confidence", string(ev.Confidence)),
	)
	return ev, nil
}
