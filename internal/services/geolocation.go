package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/regscout/regscout-backend/internal/platform/envutil"
	"github.com/regscout/regscout-backend/internal/platform/logger"
)

// Location is the country/city pair resolved for a client IP.
type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// Geolocator resolves client IPs through ip-api.com. The free tier is
// HTTP only and limited to 45 requests/minute, so results are cached
// in memory for the life of the process.
type Geolocator struct {
	log     *logger.Logger
	http    *http.Client
	baseURL string

	mu    sync.RWMutex
	cache map[string]Location
}

func NewGeolocator(log *logger.Logger) *Geolocator {
	return &Geolocator{
		log:     log.With("service", "Geolocator"),
		http:    &http.Client{Timeout: 5 * time.Second},
		baseURL: envutil.Str("GEOIP_API_BASE_URL", "http://ip-api.com/json"),
		cache:   make(map[string]Location),
	}
}

// Lookup returns the location for ip, or a zero Location when the
// address is local, the lookup fails, or the API reports no match.
func (g *Geolocator) Lookup(ctx context.Context, ip string) Location {
	if ip == "" || ip == "127.0.0.1" || ip == "localhost" || ip == "::1" {
		return Location{}
	}
	ip = StripPort(ip)

	g.mu.RLock()
	loc, ok := g.cache[ip]
	g.mu.RUnlock()
	if ok {
		return loc
	}

	url := fmt.Sprintf("%s/%s?fields=status,country,city", g.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Location{}
	}
	resp, err := g.http.Do(req)
	if err != nil {
		g.log.Warn("Geolocation lookup failed", "ip", ip, "error", err)
		return Location{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.log.Warn("Geolocation API returned non-200", "ip", ip, "status", resp.StatusCode)
		return Location{}
	}

	var body struct {
		Status  string `json:"status"`
		Country string `json:"country"`
		City    string `json:"city"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}
	}
	if body.Status != "success" {
		return Location{}
	}

	loc = Location{Country: body.Country, City: body.City}
	g.mu.Lock()
	g.cache[ip] = loc
	g.mu.Unlock()
	return loc
}

// StripPort removes a trailing port from an IPv4 or bracketed IPv6
// address. Bare IPv6 addresses pass through untouched.
func StripPort(ip string) string {
	if strings.HasPrefix(ip, "[") {
		if end := strings.Index(ip, "]"); end > 0 {
			return ip[1:end]
		}
		return ip
	}
	// A single colon means IPv4 with port; more than one means IPv6.
	if strings.Count(ip, ":") == 1 {
		return ip[:strings.Index(ip, ":")]
	}
	return ip
}

// ExtractClientIP picks the original client address: the first entry
// of X-Forwarded-For when present, else the direct remote address.
func ExtractClientIP(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		return strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	}
	return remoteAddr
}
