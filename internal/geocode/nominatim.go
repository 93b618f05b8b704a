// Package geocode resolves GPS coordinates to a localized place breakdown
// using the OpenStreetMap Nominatim reverse endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/your-org/photocat/internal/config"
	"github.com/your-org/photocat/internal/observability"
)

// LocalizedName carries a place name in both catalog locales.
type LocalizedName struct {
	En string
	Sv string
}

// Best returns the preferred display name, English first.
func (n LocalizedName) Best() string {
	if n.En != "" {
		return n.En
	}
	return n.Sv
}

// Place is the reverse-geocoding result, broadest level first.
type Place struct {
	Country *LocalizedName
	State   *LocalizedName
	City    *LocalizedName
	Street  *LocalizedName
}

// Client is a rate-limited, cache-backed Nominatim client. All calls are
// serialized process-wide to honor the upstream politeness policy.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	minInterval time.Duration

	mu          sync.Mutex
	lastRequest time.Time

	cache *gocache.Cache
}

func NewClient(cfg config.GeocodingConfig) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		userAgent:   cfg.UserAgent,
		minInterval: cfg.MinInterval,
		cache:       gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

type nominatimResponse struct {
	Address *nominatimAddress `json:"address"`
}

type nominatimAddress struct {
	Country      string `json:"country"`
	State        string `json:"state"`
	Region       string `json:"region"`
	Province     string `json:"province"`
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Municipality string `json:"municipality"`
	Road         string `json:"road"`
	Street       string `json:"street"`
}

// ReverseGeocode resolves coordinates to a place. A definite "no result"
// returns (nil, nil); upstream failures are treated as a definite negative
// and cached so the same location is not retried within a run.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (*Place, error) {
	// 4 decimals is ~11 m, trading precision for cache hit rate.
	lat, lon = round4(lat), round4(lon)
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)

	if cached, found := c.cache.Get(key); found {
		observability.GeocodeLookups.WithLabelValues("cache_hit").Inc()
		return cached.(*Place), nil
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	place, err := c.fetch(ctx, lat, lon)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("reverse geocode failed", "lat", lat, "lon", lon, "error", err)
		observability.GeocodeLookups.WithLabelValues("no_result").Inc()
		c.cache.SetDefault(key, (*Place)(nil))
		return nil, nil
	}
	if place == nil {
		observability.GeocodeLookups.WithLabelValues("no_result").Inc()
	} else {
		observability.GeocodeLookups.WithLabelValues("ok").Inc()
	}
	c.cache.SetDefault(key, place)
	return place, nil
}

// throttle blocks until the minimum inter-request interval has elapsed.
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := c.minInterval - time.Since(c.lastRequest); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	c.lastRequest = time.Now()
	return nil
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (*Place, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", lat))
	q.Set("lon", fmt.Sprintf("%.4f", lon))
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("namedetails", "1")
	q.Set("zoom", "18")
	q.Set("accept-language", "en,sv")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim status %d", resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if body.Address == nil {
		return nil, nil
	}

	addr := body.Address
	// Richer aliases map down to the four catalog levels.
	state := firstNonEmpty(addr.State, addr.Region, addr.Province)
	city := firstNonEmpty(addr.City, addr.Town, addr.Village, addr.Municipality)
	street := firstNonEmpty(addr.Road, addr.Street)

	place := &Place{
		Country: localized(addr.Country),
		State:   localized(state),
		City:    localized(city),
		Street:  localized(street),
	}
	if place.Country == nil && place.State == nil && place.City == nil && place.Street == nil {
		return nil, nil
	}
	return place, nil
}

// localized duplicates the accept-language value into both locales;
// Nominatim does not return per-component translations.
func localized(name string) *LocalizedName {
	if name == "" {
		return nil
	}
	return &LocalizedName{En: name, Sv: name}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
