package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

const virusTotalSource = "virustotal"

// VirusTotalClient handles communication with the VirusTotal v3 API
type VirusTotalClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      *Cache
	budget     *budget
	cacheTTL   time.Duration
}

// VirusTotalConfig holds VirusTotal client configuration
type VirusTotalConfig struct {
	APIKey            string
	Timeout           time.Duration
	CacheTTL          time.Duration
	RequestsPerMinute int
}

// NewVirusTotalClient creates a new VirusTotal client. The free tier
// allows 4 requests/minute, so the cache TTL defaults long.
func NewVirusTotalClient(cfg VirusTotalConfig, cache *Cache) *VirusTotalClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 4
	}

	return &VirusTotalClient{
		apiKey:   cfg.APIKey,
		baseURL:  "https://www.virustotal.com/api/v3",
		cache:    cache,
		budget:   newBudget(cfg.RequestsPerMinute),
		cacheTTL: cfg.CacheTTL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type virusTotalIPResponse struct {
	Data struct {
		Attributes struct {
			Reputation           int      `json:"reputation"` // -100..100, negative = bad
			Tags                 []string `json:"tags"`
			LastModificationDate int64    `json:"last_modification_date"`
			LastAnalysisStats    struct {
				Harmless   int `json:"harmless"`
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
				Undetected int `json:"undetected"`
			} `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// Lookup queries VirusTotal for IP reputation
func (c *VirusTotalClient) Lookup(ctx context.Context, ip string) (*entity.ReputationRecord, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	if rec, ok := c.cache.Get(virusTotalSource, ip, c.cacheTTL); ok {
		return rec, nil
	}

	if !c.budget.allow() {
		return nil, ErrRateLimited
	}

	reqURL := fmt.Sprintf("%s/ip_addresses/%s", c.baseURL, ip)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode == http.StatusNotFound {
		// IP unknown to VT: cache the clean record so we do not burn the
		// tiny quota re-asking
		rec := &entity.ReputationRecord{
			Source:    virusTotalSource,
			IP:        ip,
			FetchedAt: time.Now(),
		}
		c.cache.Set(virusTotalSource, ip, rec)
		return rec, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode)
	}

	var apiResp virusTotalIPResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	attrs := apiResp.Data.Attributes
	stats := attrs.LastAnalysisStats
	totalEngines := stats.Harmless + stats.Malicious + stats.Suspicious + stats.Undetected

	score := 0
	if totalEngines > 0 {
		score = int(float64(stats.Malicious+stats.Suspicious) / float64(totalEngines) * 100)
	}
	// Negative community reputation adds up to 50 points
	if attrs.Reputation < 0 {
		penalty := -attrs.Reputation
		if penalty > 50 {
			penalty = 50
		}
		score += penalty
	}
	if score > 100 {
		score = 100
	}

	rec := &entity.ReputationRecord{
		Source:      virusTotalSource,
		IP:          ip,
		RiskScore:   score,
		IsMalicious: stats.Malicious >= 3,
		Detail:      attrs.Tags,
		FetchedAt:   time.Now(),
	}
	if attrs.LastModificationDate > 0 {
		rec.LastSeen = time.Unix(attrs.LastModificationDate, 0)
	}
	if stats.Malicious > 0 {
		rec.Detail = append(rec.Detail, fmt.Sprintf("%d/%d engines flag malicious", stats.Malicious, totalEngines))
	}

	c.cache.Set(virusTotalSource, ip, rec)
	return rec, nil
}

// Name returns the provider name
func (c *VirusTotalClient) Name() string {
	return virusTotalSource
}

// IsConfigured returns true if the client has an API key
func (c *VirusTotalClient) IsConfigured() bool {
	return c.apiKey != ""
}
