package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPPredictor calls the external prediction service over HTTP.
type HTTPPredictor struct {
	httpClient *resty.Client
}

// NewHTTPPredictor returns a client for the service rooted at baseURL. The
// client does not retry; the caller's deadline bounds each call.
func NewHTTPPredictor(baseURL string, timeout time.Duration) *HTTPPredictor {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPPredictor{httpClient: client}
}

// predictResponse is the wire shape. RiskScore is a pointer so that a body
// without the field is rejected instead of decoding to zero.
type predictResponse struct {
	RiskScore *float64 `json:"risk_score"`
	Level     Level    `json:"level"`
}

func (p *HTTPPredictor) Predict(ctx context.Context, v Vitals) (*Prediction, error) {
	var out predictResponse
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetBody(v).
		SetResult(&out).
		Post("/predict")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPredictorUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrPredictorUnavailable, resp.StatusCode())
	}
	if out.RiskScore == nil {
		return nil, fmt.Errorf("%w: response has no risk_score", ErrPredictorUnavailable)
	}
	return &Prediction{RiskScore: *out.RiskScore, Level: out.Level}, nil
}
