package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

const shodanSource = "shodan_internetdb"

// suspiciousPorts maps open ports to score contributions. Backdoor and C2
// staples weigh more than plain remote-access services.
var suspiciousPorts = map[int]int{
	4444:  20, // Metasploit default
	5555:  15,
	6666:  15,
	6667:  15, // IRC
	31337: 20,
	1337:  15,
	9001:  10, // Tor
	9050:  10, // Tor
	3389:  5,  // RDP
	5900:  5,  // VNC
	4443:  10,
	8888:  10,
}

// ShodanInternetDBClient queries Shodan's free InternetDB API.
// No authentication required; provides open ports, tags and known vulns.
type ShodanInternetDBClient struct {
	httpClient *http.Client
	baseURL    string
	cache      *Cache
	budget     *budget
	cacheTTL   time.Duration
}

// ShodanConfig holds Shodan InternetDB client configuration
type ShodanConfig struct {
	Timeout           time.Duration
	CacheTTL          time.Duration
	RequestsPerMinute int
}

// NewShodanInternetDBClient creates a new Shodan InternetDB client
func NewShodanInternetDBClient(cfg ShodanConfig, cache *Cache) *ShodanInternetDBClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}

	return &ShodanInternetDBClient{
		baseURL:  "https://internetdb.shodan.io/",
		cache:    cache,
		budget:   newBudget(cfg.RequestsPerMinute),
		cacheTTL: cfg.CacheTTL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type shodanInternetDBResponse struct {
	IP        string   `json:"ip"`
	Ports     []int    `json:"ports"`
	Hostnames []string `json:"hostnames"`
	Tags      []string `json:"tags"`
	Vulns     []string `json:"vulns"`
}

// Lookup queries Shodan InternetDB for an IP
func (c *ShodanInternetDBClient) Lookup(ctx context.Context, ip string) (*entity.ReputationRecord, error) {
	if rec, ok := c.cache.Get(shodanSource, ip, c.cacheTTL); ok {
		return rec, nil
	}

	if !c.budget.allow() {
		return nil, ErrRateLimited
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+ip, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	// 404 means the IP is unknown to InternetDB, which is itself a signal
	if resp.StatusCode == http.StatusNotFound {
		rec := &entity.ReputationRecord{
			Source:    shodanSource,
			IP:        ip,
			FetchedAt: time.Now(),
		}
		c.cache.Set(shodanSource, ip, rec)
		return rec, nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode)
	}

	var apiResp shodanInternetDBResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	rec := c.scoreResponse(ip, &apiResp)
	c.cache.Set(shodanSource, ip, rec)
	return rec, nil
}

// scoreResponse derives a 0-100 score from ports, tags and vulns
func (c *ShodanInternetDBClient) scoreResponse(ip string, resp *shodanInternetDBResponse) *entity.ReputationRecord {
	score := 0
	var detail []string

	for _, port := range resp.Ports {
		if pts, ok := suspiciousPorts[port]; ok {
			score += pts
			detail = append(detail, fmt.Sprintf("suspicious port %d open", port))
		}
	}

	for _, tag := range resp.Tags {
		switch strings.ToLower(tag) {
		case "compromised", "malware", "c2":
			score += 30
			detail = append(detail, "tag:"+tag)
		case "proxy", "vpn", "tor":
			score += 15
			detail = append(detail, "tag:"+tag)
		case "honeypot", "self-signed", "scanner":
			score += 10
			detail = append(detail, "tag:"+tag)
		}
	}

	if n := len(resp.Vulns); n > 0 {
		pts := n * 5
		if pts > 25 {
			pts = 25
		}
		score += pts
		detail = append(detail, fmt.Sprintf("%d known vulnerabilities", n))
	}

	if score > 100 {
		score = 100
	}

	return &entity.ReputationRecord{
		Source:      shodanSource,
		IP:          ip,
		RiskScore:   score,
		IsMalicious: score >= 60,
		Detail:      detail,
		FetchedAt:   time.Now(),
	}
}

// Name returns the provider name
func (c *ShodanInternetDBClient) Name() string {
	return shodanSource
}

// IsConfigured returns true; InternetDB needs no API key
func (c *ShodanInternetDBClient) IsConfigured() bool {
	return true
}
