package mlscorer

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

// HTTPScorer queries an external scoring service over HTTP. Timeouts
// and transport errors degrade to an unavailable result so the caller
// never blocks on a sick model endpoint.
type HTTPScorer struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPScorer creates a scorer backed by an HTTP endpoint
func NewHTTPScorer(url string, timeout time.Duration, logger *slog.Logger) *HTTPScorer {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPScorer{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type scoreRequest struct {
	SourceIP string    `json:"source_ip"`
	Username string    `json:"username"`
	Server   string    `json:"server"`
	Outcome  string    `json:"outcome"`
	At       time.Time `json:"at"`
}

type scoreResponse struct {
	RiskScore  int     `json:"risk_score"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

// Score queries the model endpoint for the event
func (s *HTTPScorer) Score(ctx context.Context, event *entity.Event) Result {
	body, err := json.Marshal(scoreRequest{
		SourceIP: event.SourceIP,
		Username: event.Username,
		Server:   event.DestinationServer,
		Outcome:  string(event.Outcome),
		At:       event.Timestamp,
	})
	if err != nil {
		return Result{Available: false}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, bytes.NewReader(body))
	if err != nil {
		return Result{Available: false}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug("ml scorer unavailable", "error", err)
		return Result{Available: false}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Debug("ml scorer returned non-200", "status", resp.StatusCode)
		return Result{Available: false}
	}

	var sr scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Result{Available: false}
	}

	if sr.RiskScore < 0 {
		sr.RiskScore = 0
	}
	if sr.RiskScore > 100 {
		sr.RiskScore = 100
	}

	return Result{
		Available:  true,
		RiskScore:  sr.RiskScore,
		Confidence: sr.Confidence,
		Label:      sr.Label,
	}
}
