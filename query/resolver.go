package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"heatlens/api/models"
)

const (
	// minClickCount is the noise floor: positions with fewer aggregated
	// clicks are not statistically meaningful and only bloat responses.
	minClickCount = 3

	// maxPoints caps every heatmap response.
	maxPoints = 1000
)

// AggSource reads the pre-aggregated daily tables.
type AggSource interface {
	SumClickRange(ctx context.Context, req models.HeatmapRequest) ([]models.Point, time.Time, error)
	SumScrollRange(ctx context.Context, req models.HeatmapRequest) ([]models.Point, time.Time, error)
}

// RawSource aggregates directly over raw events, the fallback when the
// pre-aggregate has no coverage and the only path for read heatmaps.
type RawSource interface {
	GroupClicksRaw(ctx context.Context, req models.HeatmapRequest) ([]models.Point, error)
	ScrollDepthsRaw(ctx context.Context, req models.HeatmapRequest) ([]models.Point, error)
	ReadIntensityRaw(ctx context.Context, req models.HeatmapRequest) ([]models.Point, error)
}

// Result is a resolved heatmap. LastUpdated is zero when the result was
// computed from raw events rather than the aggregate; callers use it to
// reason about freshness relative to the daily aggregation cadence.
type Result struct {
	Points        []models.Point `json:"points"`
	FromAggregate bool           `json:"from_aggregate"`
	LastUpdated   time.Time      `json:"last_updated,omitempty"`
}

// Resolver serves heatmap reads, preferring the aggregate summary and
// falling back to raw aggregation. Absent data resolves to an empty result,
// never an error, so visualizations degrade to empty states.
type Resolver struct {
	agg AggSource
	raw RawSource
	log zerolog.Logger
}

func NewResolver(agg AggSource, raw RawSource, logger zerolog.Logger) *Resolver {
	return &Resolver{agg: agg, raw: raw, log: logger}
}

func (r *Resolver) Heatmap(ctx context.Context, req models.HeatmapRequest) (Result, error) {
	switch req.HeatmapType {
	case models.HeatmapClick:
		return r.clickHeatmap(ctx, req)
	case models.HeatmapScroll:
		return r.scrollHeatmap(ctx, req)
	case models.HeatmapRead:
		return r.readHeatmap(ctx, req)
	default:
		return Result{}, fmt.Errorf("unknown heatmap type %q", req.HeatmapType)
	}
}

func (r *Resolver) clickHeatmap(ctx context.Context, req models.HeatmapRequest) (Result, error) {
	points, updated, err := r.agg.SumClickRange(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("click aggregate query failed: %w", err)
	}
	if len(points) > 0 {
		return Result{
			Points:        clickPolicy(points),
			FromAggregate: true,
			LastUpdated:   updated,
		}, nil
	}

	// The aggregate has nothing for this selection; the range may predate
	// the last rebuild or include only today's not-yet-aggregated events.
	points, err = r.raw.GroupClicksRaw(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("raw click fallback failed: %w", err)
	}
	return Result{Points: clickPolicy(points)}, nil
}

// clickPolicy applies the presentation rules: drop positions under the noise
// floor, order by count descending, cap the result.
func clickPolicy(points []models.Point) []models.Point {
	filtered := make([]models.Point, 0, len(points))
	for _, p := range points {
		if p.Count >= minClickCount {
			filtered = append(filtered, p)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Count != filtered[j].Count {
			return filtered[i].Count > filtered[j].Count
		}
		if filtered[i].Y != filtered[j].Y {
			return filtered[i].Y < filtered[j].Y
		}
		return filtered[i].X < filtered[j].X
	})
	if len(filtered) > maxPoints {
		filtered = filtered[:maxPoints]
	}
	return filtered
}

func (r *Resolver) scrollHeatmap(ctx context.Context, req models.HeatmapRequest) (Result, error) {
	buckets, updated, err := r.agg.SumScrollRange(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("scroll aggregate query failed: %w", err)
	}
	fromAggregate := len(buckets) > 0
	if !fromAggregate {
		buckets, err = r.raw.ScrollDepthsRaw(ctx, req)
		if err != nil {
			return Result{}, fmt.Errorf("raw scroll fallback failed: %w", err)
		}
		updated = time.Time{}
	}

	res := Result{Points: cumulativeReach(buckets), FromAggregate: fromAggregate}
	if fromAggregate {
		res.LastUpdated = updated
	}
	return res, nil
}

// cumulativeReach turns per-bucket deepest-scroll counts into reach: the
// number of sessions that scrolled at least as far as each bucket.
func cumulativeReach(buckets []models.Point) []models.Point {
	if len(buckets) == 0 {
		return []models.Point{}
	}
	byDepth := make(map[int32]uint64, len(buckets))
	for _, b := range buckets {
		byDepth[b.Y] += b.Count
	}

	points := make([]models.Point, 0, 11)
	var reach uint64
	for depth := int32(100); depth >= 0; depth -= 10 {
		reach += byDepth[depth]
		points = append(points, models.Point{Y: depth, Count: reach})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Y < points[j].Y })
	return points
}

func (r *Resolver) readHeatmap(ctx context.Context, req models.HeatmapRequest) (Result, error) {
	points, err := r.raw.ReadIntensityRaw(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("read intensity query failed: %w", err)
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Count != points[j].Count {
			return points[i].Count > points[j].Count
		}
		return points[i].Y < points[j].Y
	})
	if len(points) > maxPoints {
		points = points[:maxPoints]
	}
	if points == nil {
		points = []models.Point{}
	}
	return Result{Points: points}, nil
}
