package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

const abuseIPDBSource = "abuseipdb"

// AbuseIPDBClient handles communication with the AbuseIPDB API
type AbuseIPDBClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      *Cache
	budget     *budget
	cacheTTL   time.Duration
}

// AbuseIPDBConfig holds AbuseIPDB client configuration
type AbuseIPDBConfig struct {
	APIKey            string
	Timeout           time.Duration
	CacheTTL          time.Duration
	RequestsPerMinute int
}

// NewAbuseIPDBClient creates a new AbuseIPDB client
func NewAbuseIPDBClient(cfg AbuseIPDBConfig, cache *Cache) *AbuseIPDBClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 6 * time.Hour
	}

	return &AbuseIPDBClient{
		apiKey:   cfg.APIKey,
		baseURL:  "https://api.abuseipdb.com/api/v2",
		cache:    cache,
		budget:   newBudget(cfg.RequestsPerMinute),
		cacheTTL: cfg.CacheTTL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// abuseIPDBResponse represents the API response for an IP check
type abuseIPDBResponse struct {
	Data abuseIPDBData `json:"data"`
}

type abuseIPDBData struct {
	IPAddress            string `json:"ipAddress"`
	AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
	CountryCode          string `json:"countryCode"`
	UsageType            string `json:"usageType"`
	ISP                  string `json:"isp"`
	TotalReports         int    `json:"totalReports"`
	NumDistinctUsers     int    `json:"numDistinctUsers"`
	IsTor                bool   `json:"isTor"`
	IsWhitelisted        bool   `json:"isWhitelisted"`
	LastReportedAt       string `json:"lastReportedAt"`
}

// Lookup queries AbuseIPDB for IP reputation
func (c *AbuseIPDBClient) Lookup(ctx context.Context, ip string) (*entity.ReputationRecord, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	if rec, ok := c.cache.Get(abuseIPDBSource, ip, c.cacheTTL); ok {
		return rec, nil
	}

	if !c.budget.allow() {
		return nil, ErrRateLimited
	}

	reqURL := fmt.Sprintf("%s/check?ipAddress=%s&maxAgeInDays=90&verbose=true",
		c.baseURL, url.QueryEscape(ip))

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode)
	}

	var apiResp abuseIPDBResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	d := apiResp.Data
	rec := &entity.ReputationRecord{
		Source:      abuseIPDBSource,
		IP:          ip,
		RiskScore:   d.AbuseConfidenceScore, // already 0-100
		IsMalicious: d.AbuseConfidenceScore >= 75 && !d.IsWhitelisted,
		FetchedAt:   time.Now(),
	}
	if d.LastReportedAt != "" {
		if ts, err := time.Parse(time.RFC3339, d.LastReportedAt); err == nil {
			rec.LastSeen = ts
		}
	}
	if d.TotalReports > 0 {
		rec.Detail = append(rec.Detail, fmt.Sprintf("%d abuse reports from %d reporters", d.TotalReports, d.NumDistinctUsers))
	}
	if d.IsTor {
		rec.Detail = append(rec.Detail, "tor_exit_node")
	}
	if d.UsageType != "" {
		rec.Detail = append(rec.Detail, "usage:"+d.UsageType)
	}

	c.cache.Set(abuseIPDBSource, ip, rec)
	return rec, nil
}

// Name returns the provider name
func (c *AbuseIPDBClient) Name() string {
	return abuseIPDBSource
}

// IsConfigured returns true if the client has an API key
func (c *AbuseIPDBClient) IsConfigured() bool {
	return c.apiKey != ""
}
