package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fieldserve/backend/internal/geo"
	"github.com/fieldserve/backend/internal/models"
)

var ErrNoRoute = errors.New("directions: no route found")

const DefaultGoogleBaseURL = "https://maps.googleapis.com"

// GoogleProvider talks to the Google Directions and Distance Matrix JSON APIs.
// Fields are read-only after construction so one value can serve concurrent
// callers.
type GoogleProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewGoogleProvider fills in the default endpoint and HTTP client.
func NewGoogleProvider(baseURL, apiKey string, client *http.Client) *GoogleProvider {
	if baseURL == "" {
		baseURL = DefaultGoogleBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleProvider{BaseURL: baseURL, APIKey: apiKey, Client: client}
}

type googleValue struct {
	Value float64 `json:"value"`
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		WaypointOrder []int `json:"waypoint_order"`
		Legs          []struct {
			Distance googleValue `json:"distance"`
			Duration googleValue `json:"duration"`
		} `json:"legs"`
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
	} `json:"routes"`
}

type matrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string      `json:"status"`
			Distance googleValue `json:"distance"`
			Duration googleValue `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

func (g *GoogleProvider) Configured() bool {
	return strings.TrimSpace(g.APIKey) != ""
}

var fallbackClient = &http.Client{Timeout: 10 * time.Second}

func (g *GoogleProvider) httpClient() *http.Client {
	if g.Client == nil {
		return fallbackClient
	}
	return g.Client
}

func (g *GoogleProvider) baseURL() string {
	if g.BaseURL == "" {
		return DefaultGoogleBaseURL
	}
	return g.BaseURL
}

func (g *GoogleProvider) TravelTime(ctx context.Context, from, to models.GeoPoint) (int, error) {
	if !g.Configured() {
		return 0, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("origins", formatPoint(from))
	q.Set("destinations", formatPoint(to))
	q.Set("key", g.APIKey)

	var res matrixResponse
	if err := g.get(ctx, "/maps/api/distancematrix/json", q, &res); err != nil {
		return 0, err
	}
	seconds, err := parseMatrix(res)
	if err != nil {
		return 0, err
	}
	return geo.SecondsToMinutes(seconds), nil
}

func (g *GoogleProvider) OptimizedOrder(ctx context.Context, req RouteRequest) (RouteResponse, error) {
	if !g.Configured() {
		return RouteResponse{}, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("origin", formatPoint(req.Origin))
	q.Set("destination", formatPoint(req.Destination))
	if len(req.Waypoints) > 0 {
		parts := make([]string, 0, len(req.Waypoints)+1)
		if req.Optimize {
			parts = append(parts, "optimize:true")
		}
		for _, w := range req.Waypoints {
			parts = append(parts, formatPoint(w.Point))
		}
		q.Set("waypoints", strings.Join(parts, "|"))
	}
	q.Set("key", g.APIKey)

	var res directionsResponse
	if err := g.get(ctx, "/maps/api/directions/json", q, &res); err != nil {
		return RouteResponse{}, err
	}
	return parseDirections(res, len(req.Waypoints))
}

func (g *GoogleProvider) get(ctx context.Context, path string, q url.Values, out any) error {
	endpoint := strings.TrimRight(g.baseURL(), "/") + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := g.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("directions http error: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseDirections(res directionsResponse, waypoints int) (RouteResponse, error) {
	if res.Status == "ZERO_RESULTS" || (res.Status == "OK" && len(res.Routes) == 0) {
		return RouteResponse{}, ErrNoRoute
	}
	if res.Status != "OK" {
		return RouteResponse{}, fmt.Errorf("directions status %s: %s", res.Status, res.ErrorMessage)
	}
	route := res.Routes[0]
	order := route.WaypointOrder
	if len(order) == 0 && waypoints > 0 {
		order = identity(waypoints)
	}
	if err := ValidatePermutation(order, waypoints); err != nil {
		return RouteResponse{}, err
	}
	out := RouteResponse{Order: order, Polyline: route.OverviewPolyline.Points}
	for _, leg := range route.Legs {
		out.DistanceMeters += leg.Distance.Value
		out.DurationSeconds += leg.Duration.Value
	}
	return out, nil
}

func parseMatrix(res matrixResponse) (float64, error) {
	if res.Status != "OK" {
		return 0, fmt.Errorf("distance matrix status %s: %s", res.Status, res.ErrorMessage)
	}
	if len(res.Rows) == 0 || len(res.Rows[0].Elements) == 0 {
		return 0, ErrNoRoute
	}
	el := res.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, ErrNoRoute
	}
	return el.Duration.Value, nil
}

func formatPoint(p models.GeoPoint) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
