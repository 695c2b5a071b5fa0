package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rain2recharge/r2r/internal/assessment"
)

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultMapboxURL    = "https://api.mapbox.com"
	defaultGoogleURL    = "https://maps.googleapis.com"

	// DefaultUserAgent identifies requests to Nominatim, whose usage policy
	// requires one.
	DefaultUserAgent = "r2r/1.0 (rain2recharge)"

	searchLimit = 5
)

func baseOr(base, def string) string {
	if base == "" {
		return def
	}
	return strings.TrimRight(base, "/")
}

// Nominatim queries an OpenStreetMap Nominatim instance.
type Nominatim struct {
	baseURL   string
	userAgent string
}

func NewNominatim(baseURL, userAgent string) *Nominatim {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Nominatim{baseURL: baseOr(baseURL, defaultNominatimURL), userAgent: userAgent}
}

func (n *Nominatim) Name() string { return ProviderNominatim }

type nominatimPlace struct {
	PlaceID     int64             `json:"place_id"`
	DisplayName string            `json:"display_name"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Type        string            `json:"type"`
	Class       string            `json:"class"`
	Address     map[string]string `json:"address,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func (p nominatimPlace) toPlace() (Place, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return Place{}, fmt.Errorf("parsing lat %q: %w", p.Lat, err)
	}
	lng, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return Place{}, fmt.Errorf("parsing lon %q: %w", p.Lon, err)
	}
	extra := map[string]string{"placeId": strconv.FormatInt(p.PlaceID, 10)}
	if p.Class != "" {
		extra["class"] = p.Class
	}
	for k, v := range p.Address {
		extra[k] = v
	}
	return Place{
		Address:     p.DisplayName,
		Coordinates: assessment.Coordinates{Lat: lat, Lng: lng},
		Type:        p.Type,
		Extra:       extra,
	}, nil
}

func (n *Nominatim) Search(ctx context.Context, query string) ([]Place, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("format", "json")
	v.Set("limit", strconv.Itoa(searchLimit))

	var raw []nominatimPlace
	if err := getJSON(ctx, n.baseURL+"/search?"+v.Encode(), n.userAgent, &raw); err != nil {
		return nil, err
	}
	out := make([]Place, 0, len(raw))
	for _, r := range raw {
		p, err := r.toPlace()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (n *Nominatim) Reverse(ctx context.Context, lat, lng float64) (Place, error) {
	v := url.Values{}
	v.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	v.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	v.Set("format", "json")

	var raw nominatimPlace
	if err := getJSON(ctx, n.baseURL+"/reverse?"+v.Encode(), n.userAgent, &raw); err != nil {
		return Place{}, err
	}
	if raw.Error != "" {
		return Place{}, fmt.Errorf("nominatim: %s", raw.Error)
	}
	return raw.toPlace()
}

// Mapbox queries the Mapbox Geocoding v5 API.
type Mapbox struct {
	baseURL string
	token   string
}

func NewMapbox(baseURL, token string) *Mapbox {
	return &Mapbox{baseURL: baseOr(baseURL, defaultMapboxURL), token: token}
}

func (m *Mapbox) Name() string { return ProviderMapbox }

type mapboxResponse struct {
	Features []struct {
		ID        string    `json:"id"`
		PlaceName string    `json:"place_name"`
		Center    []float64 `json:"center"`
		PlaceType []string  `json:"place_type"`
		Relevance float64   `json:"relevance"`
	} `json:"features"`
	Message string `json:"message,omitempty"`
}

func (r mapboxResponse) places() ([]Place, error) {
	out := make([]Place, 0, len(r.Features))
	for _, f := range r.Features {
		if len(f.Center) != 2 {
			return nil, fmt.Errorf("mapbox: feature %q has malformed center", f.ID)
		}
		typ := ""
		if len(f.PlaceType) > 0 {
			typ = f.PlaceType[0]
		}
		out = append(out, Place{
			Address:     f.PlaceName,
			Coordinates: assessment.Coordinates{Lat: f.Center[1], Lng: f.Center[0]},
			Type:        typ,
			Extra: map[string]string{
				"id":        f.ID,
				"relevance": strconv.FormatFloat(f.Relevance, 'f', -1, 64),
			},
		})
	}
	return out, nil
}

func (m *Mapbox) endpoint(search string) string {
	v := url.Values{}
	v.Set("access_token", m.token)
	v.Set("limit", strconv.Itoa(searchLimit))
	return fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s", m.baseURL, url.PathEscape(search), v.Encode())
}

func (m *Mapbox) Search(ctx context.Context, query string) ([]Place, error) {
	var resp mapboxResponse
	if err := getJSON(ctx, m.endpoint(query), "", &resp); err != nil {
		return nil, err
	}
	return resp.places()
}

func (m *Mapbox) Reverse(ctx context.Context, lat, lng float64) (Place, error) {
	point := strconv.FormatFloat(lng, 'f', -1, 64) + "," + strconv.FormatFloat(lat, 'f', -1, 64)
	var resp mapboxResponse
	if err := getJSON(ctx, m.endpoint(point), "", &resp); err != nil {
		return Place{}, err
	}
	places, err := resp.places()
	if err != nil {
		return Place{}, err
	}
	if len(places) == 0 {
		return Place{}, ErrNoResults
	}
	return places[0], nil
}

// Google queries the Google Maps Geocoding API.
type Google struct {
	baseURL string
	apiKey  string
}

func NewGoogle(baseURL, apiKey string) *Google {
	return &Google{baseURL: baseOr(baseURL, defaultGoogleURL), apiKey: apiKey}
}

func (g *Google) Name() string { return ProviderGoogle }

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Results      []struct {
		PlaceID          string   `json:"place_id"`
		FormattedAddress string   `json:"formatted_address"`
		Types            []string `json:"types"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
	} `json:"results"`
}

func (r googleResponse) places() ([]Place, error) {
	switch r.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNoResults
	default:
		msg := r.Status
		if r.ErrorMessage != "" {
			msg += ": " + r.ErrorMessage
		}
		return nil, errors.New("google: " + msg)
	}
	out := make([]Place, 0, len(r.Results))
	for _, res := range r.Results {
		typ := ""
		if len(res.Types) > 0 {
			typ = res.Types[0]
		}
		out = append(out, Place{
			Address:     res.FormattedAddress,
			Coordinates: assessment.Coordinates{Lat: res.Geometry.Location.Lat, Lng: res.Geometry.Location.Lng},
			Type:        typ,
			Extra: map[string]string{
				"placeId":      res.PlaceID,
				"locationType": res.Geometry.LocationType,
			},
		})
	}
	return out, nil
}

func (g *Google) query(ctx context.Context, v url.Values) ([]Place, error) {
	v.Set("key", g.apiKey)
	var resp googleResponse
	if err := getJSON(ctx, g.baseURL+"/maps/api/geocode/json?"+v.Encode(), "", &resp); err != nil {
		return nil, err
	}
	return resp.places()
}

func (g *Google) Search(ctx context.Context, query string) ([]Place, error) {
	return g.query(ctx, url.Values{"address": {query}})
}

func (g *Google) Reverse(ctx context.Context, lat, lng float64) (Place, error) {
	latlng := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
	places, err := g.query(ctx, url.Values{"latlng": {latlng}})
	if err != nil {
		return Place{}, err
	}
	if len(places) == 0 {
		return Place{}, ErrNoResults
	}
	return places[0], nil
}
