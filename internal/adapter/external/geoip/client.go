package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

// Client provides geolocation lookups for IP addresses.
// Uses ip-api.com (free tier: 45 requests/minute) and local caching.
type Client struct {
	httpClient *http.Client
	cache      *geoCache
	config     Config
}

// Config holds GeoIP client configuration
type Config struct {
	// CacheTTL is how long to cache geolocation results
	CacheTTL time.Duration
	// Timeout for HTTP requests
	Timeout time.Duration
	// MaxCacheSize is the maximum number of entries in the cache
	MaxCacheSize int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		CacheTTL:     24 * time.Hour,
		Timeout:      5 * time.Second,
		MaxCacheSize: 10000,
	}
}

// geoCache provides thread-safe caching for geolocation results
type geoCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	maxSize int
}

type cacheEntry struct {
	data      *entity.GeoInfo
	expiresAt time.Time
}

func newGeoCache(maxSize int) *geoCache {
	return &geoCache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
	}
}

func (c *geoCache) Get(ip string) (*entity.GeoInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[ip]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

func (c *geoCache) Set(ip string, data *entity.GeoInfo, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple eviction: if at max size, remove oldest 10%
	if len(c.entries) >= c.maxSize {
		count := 0
		toDelete := c.maxSize / 10
		for key := range c.entries {
			delete(c.entries, key)
			count++
			if count >= toDelete {
				break
			}
		}
	}

	c.entries[ip] = &cacheEntry{
		data:      data,
		expiresAt: time.Now().Add(ttl),
	}
}

func (c *geoCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// NewClient creates a new GeoIP client
func NewClient(config Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache:  newGeoCache(config.MaxCacheSize),
		config: config,
	}
}

// NewDefaultClient creates a client with default configuration
func NewDefaultClient() *Client {
	return NewClient(DefaultConfig())
}

// ipAPIResponse represents the response from ip-api.com
type ipAPIResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Query       string  `json:"query"`
}

// Lookup performs a geolocation lookup for an IP address.
// Private and loopback IPs return nil without a network call.
func (c *Client) Lookup(ctx context.Context, ip string) (*entity.GeoInfo, error) {
	parsed := net.ParseIP(ip)
	if parsed != nil && (parsed.IsPrivate() || parsed.IsLoopback()) {
		return nil, nil
	}

	if cached, ok := c.cache.Get(ip); ok {
		return cached, nil
	}

	url := fmt.Sprintf("http://ip-api.com/json/%s?fields=status,message,country,countryCode,city,lat,lon,query", ip)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geoip api returned status %d", resp.StatusCode)
	}

	var apiResp ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if apiResp.Status != "success" {
		return nil, fmt.Errorf("geoip lookup failed: %s", apiResp.Message)
	}

	geo := &entity.GeoInfo{
		CountryCode: apiResp.CountryCode,
		CountryName: apiResp.Country,
		City:        apiResp.City,
		Latitude:    apiResp.Lat,
		Longitude:   apiResp.Lon,
	}

	c.cache.Set(ip, geo, c.config.CacheTTL)

	return geo, nil
}

// GetCacheStats returns cache statistics
func (c *Client) GetCacheStats() (size int, ttl time.Duration) {
	return c.cache.Size(), c.config.CacheTTL
}

// GetProviderName returns the provider name
func (c *Client) GetProviderName() string {
	return "ip-api.com"
}
