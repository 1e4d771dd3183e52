package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrPredictorUnavailable is returned by predictors that cannot produce an
// answer. Classifier absorbs it and falls back to the rule scorer.
var ErrPredictorUnavailable = errors.New("risk predictor unavailable")

// Predictor is the external risk model.
type Predictor interface {
	Predict(ctx context.Context, v Vitals) (*Prediction, error)
}

// Classifier turns a Vitals reading into an Assessment. It prefers the
// external predictor and degrades to the rule scorer on error, timeout or a
// malformed answer. Classify never fails.
type Classifier struct {
	cfg       Config
	predictor Predictor
	rules     *RuleScorer
}

// NewClassifier builds a classifier. A nil predictor yields a fallback-only
// classifier.
func NewClassifier(cfg Config, predictor Predictor) *Classifier {
	return &Classifier{cfg: cfg, predictor: predictor, rules: NewRuleScorer(cfg)}
}

func (c *Classifier) Classify(ctx context.Context, v Vitals) Assessment {
	if c.predictor == nil {
		return c.fallback("predictor not configured", v)
	}

	callCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	pred, err := c.predictor.Predict(callCtx, v)
	if err != nil {
		return c.fallback(err.Error(), v)
	}
	if err := validatePrediction(pred, c.cfg.Thresholds); err != nil {
		return c.fallback(err.Error(), v)
	}
	return Assessment{
		Score:  pred.RiskScore,
		Level:  c.cfg.Thresholds.LevelFor(pred.RiskScore),
		Source: SourcePredictor,
	}
}

// Fallback exposes the rule-based path directly.
func (c *Classifier) Fallback(v Vitals) Assessment {
	return c.rules.Assess(v)
}

func (c *Classifier) fallback(reason string, v Vitals) Assessment {
	a := c.rules.Assess(v)
	a.FallbackReason = reason
	return a
}

// validatePrediction rejects answers the alerting path cannot trust. A level,
// when sent, must agree with the level the score maps to.
func validatePrediction(p *Prediction, th Thresholds) error {
	if p == nil {
		return fmt.Errorf("%w: empty prediction", ErrPredictorUnavailable)
	}
	if math.IsNaN(p.RiskScore) || p.RiskScore < 0 || p.RiskScore > 1 {
		return fmt.Errorf("%w: risk_score %v out of range", ErrPredictorUnavailable, p.RiskScore)
	}
	if p.Level != "" && !p.Level.Valid() {
		return fmt.Errorf("%w: unknown level %q", ErrPredictorUnavailable, p.Level)
	}
	if want := th.LevelFor(p.RiskScore); p.Level != "" && p.Level != want {
		return fmt.Errorf("%w: level %q contradicts risk_score %v (%s)", ErrPredictorUnavailable, p.Level, p.RiskScore, want)
	}
	return nil
}
