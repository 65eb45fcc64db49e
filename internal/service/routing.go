package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/fieldserve/backend/internal/directions"
	"github.com/fieldserve/backend/internal/geo"
	"github.com/fieldserve/backend/internal/models"
)

type RouteOptions struct {
	ReturnToStart bool `json:"return_to_start"`
	// CompareBaseline asks the provider for the unsorted route too, so that
	// savings can be reported. The fallback always has a baseline.
	CompareBaseline bool `json:"compare_baseline"`
}

type OptimizedRoute struct {
	Waypoints          []models.Waypoint
	TotalDistanceMiles float64
	TotalMinutes       int
	Polyline           string
	Method             string
	Savings            *models.Savings
}

// OptimizeRoute orders waypoints through the directions provider. It never
// falls back on its own: directions.ErrNotConfigured and
// *directions.ProviderUnavailableError reach the caller, which decides.
func OptimizeRoute(ctx context.Context, provider directions.Provider, start models.GeoPoint, waypoints []models.Waypoint, opts RouteOptions) (OptimizedRoute, error) {
	if len(waypoints) <= 1 {
		return unchangedRoute(waypoints), nil
	}
	if err := checkWaypointKeys(waypoints); err != nil {
		return OptimizedRoute{}, err
	}
	if !directions.IsConfigured(provider) {
		return OptimizedRoute{}, directions.ErrNotConfigured
	}

	req, fixedLast := buildRouteRequest(start, waypoints, opts.ReturnToStart)
	req.Optimize = true
	resp, err := provider.OptimizedOrder(ctx, req)
	if err != nil {
		return OptimizedRoute{}, asUnavailable("optimized_order", err)
	}
	if err := directions.ValidatePermutation(resp.Order, len(req.Waypoints)); err != nil {
		return OptimizedRoute{}, asUnavailable("optimized_order", err)
	}

	byKey := make(map[models.JobKey]models.Waypoint, len(waypoints))
	for _, w := range waypoints {
		byKey[w.Key()] = w
	}
	ordered := make([]models.Waypoint, 0, len(waypoints))
	for _, idx := range resp.Order {
		ordered = append(ordered, byKey[req.Waypoints[idx].Key])
	}
	if fixedLast != nil {
		ordered = append(ordered, *fixedLast)
	}

	route := OptimizedRoute{
		Waypoints:          ordered,
		TotalDistanceMiles: round2(geo.MetersToMiles(resp.DistanceMeters)),
		TotalMinutes:       geo.SecondsToMinutes(resp.DurationSeconds),
		Polyline:           resp.Polyline,
		Method:             models.RouteMethodProvider,
	}

	if opts.CompareBaseline {
		req.Optimize = false
		// A failed baseline only costs the savings block.
		if base, err := provider.OptimizedOrder(ctx, req); err == nil {
			route.Savings = computeSavings(
				round2(geo.MetersToMiles(base.DistanceMeters)), geo.SecondsToMinutes(base.DurationSeconds),
				route.TotalDistanceMiles, route.TotalMinutes,
			)
		}
	}
	return route, nil
}

// buildRouteRequest keeps the last waypoint as the fixed destination unless
// the route returns to its start, in which case every waypoint is reorderable.
func buildRouteRequest(start models.GeoPoint, waypoints []models.Waypoint, returnToStart bool) (directions.RouteRequest, *models.Waypoint) {
	req := directions.RouteRequest{Origin: start}
	movable := waypoints
	var fixedLast *models.Waypoint
	if returnToStart {
		req.Destination = start
	} else {
		last := waypoints[len(waypoints)-1]
		fixedLast = &last
		req.Destination = last.Point
		movable = waypoints[:len(waypoints)-1]
	}
	req.Waypoints = make([]directions.Stop, 0, len(movable))
	for _, w := range movable {
		req.Waypoints = append(req.Waypoints, directions.Stop{Key: w.Key(), Point: w.Point})
	}
	return req, fixedLast
}

func asUnavailable(op string, err error) error {
	var unavailable *directions.ProviderUnavailableError
	if errors.Is(err, directions.ErrNotConfigured) || errors.As(err, &unavailable) {
		return err
	}
	return &directions.ProviderUnavailableError{Op: op, Attempts: 1, Err: err}
}

func unchangedRoute(waypoints []models.Waypoint) OptimizedRoute {
	return OptimizedRoute{
		Waypoints: append([]models.Waypoint(nil), waypoints...),
		Method:    models.RouteMethodNone,
	}
}

func checkWaypointKeys(waypoints []models.Waypoint) error {
	seen := make(map[models.JobKey]struct{}, len(waypoints))
	var fields []string
	for _, w := range waypoints {
		if _, dup := seen[w.Key()]; dup {
			fields = append(fields, fmt.Sprintf("duplicate waypoint %s %s", w.JobKind, w.JobID))
		}
		seen[w.Key()] = struct{}{}
	}
	if len(fields) > 0 {
		return &models.InvalidInputError{Entity: "route", Fields: fields}
	}
	return nil
}

// NearestNeighborRoute orders waypoints greedily by great-circle distance from
// start and then tightens the tour with 2-opt. Savings compare against the
// input order.
func NearestNeighborRoute(start models.GeoPoint, waypoints []models.Waypoint, opts RouteOptions) OptimizedRoute {
	if len(waypoints) <= 1 {
		return unchangedRoute(waypoints)
	}

	// Node 0 is the start; node i+1 is waypoints[i].
	nodes := make([]models.GeoPoint, 0, len(waypoints)+1)
	nodes = append(nodes, start)
	for _, w := range waypoints {
		nodes = append(nodes, w.Point)
	}

	order := nearestNeighborOrder(nodes)
	order = improve2Opt(nodes, order, opts.ReturnToStart, 10)

	ordered := make([]models.Waypoint, 0, len(waypoints))
	for _, idx := range order[1:] {
		ordered = append(ordered, waypoints[idx-1])
	}

	baseline := make([]int, len(nodes))
	for i := range baseline {
		baseline[i] = i
	}

	dist, minutes := tourTotals(nodes, order, opts.ReturnToStart)
	baseDist, baseMinutes := tourTotals(nodes, baseline, opts.ReturnToStart)
	return OptimizedRoute{
		Waypoints:          ordered,
		TotalDistanceMiles: round2(dist),
		TotalMinutes:       minutes,
		Method:             models.RouteMethodNearestNeighbor,
		Savings:            computeSavings(round2(baseDist), baseMinutes, round2(dist), minutes),
	}
}

// nearestNeighborOrder starts at node 0; ties go to the lower index.
func nearestNeighborOrder(nodes []models.GeoPoint) []int {
	visited := make([]bool, len(nodes))
	visited[0] = true
	order := make([]int, 1, len(nodes))
	current := 0
	for len(order) < len(nodes) {
		next := -1
		nextDist := 0.0
		for i := 1; i < len(nodes); i++ {
			if visited[i] {
				continue
			}
			d := geo.Distance(nodes[current], nodes[i])
			if next == -1 || d < nextDist {
				next, nextDist = i, d
			}
		}
		visited[next] = true
		order = append(order, next)
		current = next
	}
	return order
}

// improve2Opt keeps order[0] fixed. On an open path the tail may be
// reversed as well; on a closed tour the implicit return leg counts.
func improve2Opt(nodes []models.GeoPoint, order []int, closed bool, iterations int) []int {
	best := append([]int(nil), order...)
	bestDist := pathMiles(nodes, best, closed)
	n := len(best)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				candidate := twoOptSwap(best, i, k)
				d := pathMiles(nodes, candidate, closed)
				if d+1e-6 < bestDist {
					best, bestDist = candidate, d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(order []int, i, k int) []int {
	out := make([]int, len(order))
	copy(out, order[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = order[j]
		pos++
	}
	copy(out[pos:], order[k+1:])
	return out
}

func pathMiles(nodes []models.GeoPoint, order []int, closed bool) float64 {
	total, _ := tourTotals(nodes, order, closed)
	return total
}

// tourTotals sums leg distances and per-leg estimated minutes.
func tourTotals(nodes []models.GeoPoint, order []int, closed bool) (float64, int) {
	miles := 0.0
	minutes := 0
	leg := func(a, b int) {
		d := geo.Distance(nodes[a], nodes[b])
		miles += d
		minutes += geo.EstimateTravelMinutes(d)
	}
	for i := 0; i < len(order)-1; i++ {
		leg(order[i], order[i+1])
	}
	if closed && len(order) > 1 {
		leg(order[len(order)-1], order[0])
	}
	return miles, minutes
}

// computeSavings returns nil without a usable baseline; a zero baseline time
// would only produce a meaningless percentage.
func computeSavings(baseMiles float64, baseMinutes int, miles float64, minutes int) *models.Savings {
	if baseMinutes <= 0 {
		return nil
	}
	saved := baseMinutes - minutes
	return &models.Savings{
		DistanceSavedMiles: round2(baseMiles - miles),
		TimeSavedMinutes:   saved,
		PercentageSaved:    round2(float64(saved) / float64(baseMinutes) * 100),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
