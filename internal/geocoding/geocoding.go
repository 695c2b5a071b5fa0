// Package geocoding resolves addresses to coordinates and back against one of
// several interchangeable providers. Provider failures degrade to canned
// results; callers always get something to show.
package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/rain2recharge/r2r/internal/assessment"
)

// ErrNoResults is returned by providers when a query matched nothing.
var ErrNoResults = errors.New("no results")

// Place is a provider-neutral geocoding result.
type Place struct {
	Address     string                 `json:"address"`
	Coordinates assessment.Coordinates `json:"coordinates"`
	Type        string                 `json:"type,omitempty"`
	Extra       map[string]string      `json:"extra,omitempty"`
}

// Location converts p into a wizard location.
func (p Place) Location() assessment.Location {
	c := p.Coordinates
	return assessment.Location{Address: p.Address, Coordinates: &c}
}

// Provider is a single geocoding backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]Place, error)
	Reverse(ctx context.Context, lat, lng float64) (Place, error)
}

// Provider names accepted by NewProvider.
const (
	ProviderNominatim = "nominatim"
	ProviderMapbox    = "mapbox"
	ProviderGoogle    = "google"
)

// ProviderConfig carries the credentials and knobs for NewProvider.
type ProviderConfig struct {
	Name         string
	UserAgent    string
	MapboxToken  string
	GoogleAPIKey string
	// BaseURL overrides the provider endpoint (for testing).
	BaseURL string
}

// NewProvider builds the provider named in cfg.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case ProviderNominatim, "":
		return NewNominatim(cfg.BaseURL, cfg.UserAgent), nil
	case ProviderMapbox:
		return NewMapbox(cfg.BaseURL, cfg.MapboxToken), nil
	case ProviderGoogle:
		return NewGoogle(cfg.BaseURL, cfg.GoogleAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown geocoding provider %q", cfg.Name)
	}
}

// Service wraps a Provider with rate limiting and fallbacks.
type Service struct {
	provider Provider
	limiter  *rate.Limiter
	group    singleflight.Group
}

// NewService creates a Service allowing perSecond provider calls per second.
// A non-positive rate disables limiting.
func NewService(p Provider, perSecond float64) *Service {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Service{provider: p, limiter: rate.NewLimiter(limit, 1)}
}

// Provider returns the name of the backing provider.
func (s *Service) Provider() string { return s.provider.Name() }

// Search returns provider matches for query. On any provider error, or when
// the provider finds nothing, the canned places matching query are returned.
func (s *Service) Search(ctx context.Context, query string) []Place {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	places, err := s.search(ctx, query)
	if err != nil {
		if !errors.Is(err, ErrNoResults) {
			slog.Warn("geocoding search failed, using fallback", "provider", s.provider.Name(), "error", err)
		}
		return FallbackSearch(query)
	}
	return places
}

func (s *Service) search(ctx context.Context, query string) ([]Place, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	places, err := s.provider.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, ErrNoResults
	}
	return places, nil
}

// Reverse resolves coordinates to a place. On failure the address is the
// coordinates themselves, formatted by FallbackAddress. Concurrent lookups of
// the same point share one provider call, which runs detached from any single
// caller and is bounded by reverseTimeout; each caller stops waiting when its
// own ctx is done.
func (s *Service) Reverse(ctx context.Context, lat, lng float64) Place {
	key := FallbackAddress(lat, lng)
	ch := s.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reverseTimeout)
		defer cancel()
		if err := s.limiter.Wait(fctx); err != nil {
			return Place{}, err
		}
		return s.provider.Reverse(fctx, lat, lng)
	})

	var err error
	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(Place)
		}
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}

	slog.Warn("reverse geocoding failed, using coordinates", "provider", s.provider.Name(), "error", err)
	return Place{
		Address:     key,
		Coordinates: assessment.Coordinates{Lat: lat, Lng: lng},
		Type:        "coordinates",
	}
}

// FallbackAddress renders coordinates as "lat, lng".
func FallbackAddress(lat, lng float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lng)
}

// fallbackPlaces is the canned list served when a provider is unavailable.
var fallbackPlaces = []Place{
	{Address: "1100 Congress Ave, Austin, TX 78701", Coordinates: assessment.Coordinates{Lat: 30.274665, Lng: -97.740349}, Type: "address"},
	{Address: "200 E Colfax Ave, Denver, CO 80203", Coordinates: assessment.Coordinates{Lat: 39.739236, Lng: -104.984862}, Type: "address"},
	{Address: "1 Dr Carlton B Goodlett Pl, San Francisco, CA 94102", Coordinates: assessment.Coordinates{Lat: 37.779260, Lng: -122.419266}, Type: "address"},
	{Address: "200 W Washington St, Phoenix, AZ 85003", Coordinates: assessment.Coordinates{Lat: 33.448376, Lng: -112.074036}, Type: "address"},
	{Address: "600 4th Ave, Seattle, WA 98104", Coordinates: assessment.Coordinates{Lat: 47.603832, Lng: -122.330062}, Type: "address"},
	{Address: "100 N Holliday St, Baltimore, MD 21202", Coordinates: assessment.Coordinates{Lat: 39.290385, Lng: -76.612189}, Type: "address"},
}

// FallbackSearch filters the canned places by case-insensitive substring.
func FallbackSearch(query string) []Place {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []Place
	for _, p := range fallbackPlaces {
		if strings.Contains(strings.ToLower(p.Address), q) {
			out = append(out, p)
		}
	}
	return out
}

// reverseTimeout bounds a shared reverse lookup, including the rate limit wait.
const reverseTimeout = 15 * time.Second

// httpClient is shared by the provider implementations.
var httpClient = &http.Client{Timeout: 10 * time.Second}

const maxErrorBody = 1 << 10

// getJSON issues a GET and decodes a JSON body into out.
func getJSON(ctx context.Context, endpoint, userAgent string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
