package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/colthorp/prospect/internal/model"
)

func seedRatings(m *InMemoryPlaces, n int, rating float64) {
	for i := 0; i < n; i++ {
		m.Seed(model.Place{
			ID:     fmt.Sprintf("p-%.1f-%d", rating, i),
			Name:   fmt.Sprintf("Place %d", i),
			Types:  []string{"restaurant"},
			Rating: rating,
		})
	}
}

func TestInMemoryPlacesCapacity(t *testing.T) {
	m := NewInMemoryPlaces()
	seedRatings(m, 60, 4.0)
	seedRatings(m, 60, 4.5)

	req := AggregateRequest{IncludedTypes: []string{"restaurant"}, Rating: RatingRange{Min: 3.0, Max: 5.0}, Shape: model.ShapePlaces}
	_, err := m.Aggregate(context.Background(), req)
	if err == nil {
		t.Fatal("Expected capacity error for 120 places")
	}

	req.Rating = RatingRange{Min: 3.0, Max: 4.25}
	resp, err := m.Aggregate(context.Background(), req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(resp.PlaceIDs) != 60 {
		t.Errorf("Expected 60 places in lower half, got %d", len(resp.PlaceIDs))
	}

	if m.RequestsMade() != 2 {
		t.Errorf("Expected 2 requests, got %d", m.RequestsMade())
	}
}

func TestInMemoryPlacesCountIgnoresCeiling(t *testing.T) {
	m := NewInMemoryPlaces()
	seedRatings(m, 150, 4.2)

	resp, err := m.Aggregate(context.Background(), AggregateRequest{
		IncludedTypes: []string{"restaurant"},
		Rating:        RatingRange{Min: 0, Max: 5},
		Shape:         model.ShapeCount,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.TotalCount != 150 || resp.Breakdown["restaurant"] != 150 {
		t.Errorf("Unexpected count response %+v", resp)
	}
}

func TestInMemoryPlacesRatingBounds(t *testing.T) {
	m := NewInMemoryPlaces()
	seedRatings(m, 1, 4.0)
	seedRatings(m, 1, 4.3)
	seedRatings(m, 1, 3.0+0.8)
	seedRatings(m, 1, 5.0)

	count := func(min, max float64) int {
		resp, err := m.Aggregate(context.Background(), AggregateRequest{Rating: RatingRange{Min: min, Max: max}, Shape: model.ShapeCount})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		return resp.TotalCount
	}

	tests := []struct {
		name     string
		min, max float64
		want     int
	}{
		{"both ends inclusive", 3.8, 4.3, 3},
		{"max bound below 5 is inclusive", 3.0, 4.0, 2},
		{"adjacent tenths share nothing", 4.4, 4.9, 0},
		{"max of 5 is inclusive", 4.4, 5.0, 1},
		{"single tenth", 4.3, 4.3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := count(tt.min, tt.max); got != tt.want {
				t.Errorf("count(%.1f, %.1f) = %d, want %d", tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestRatingRangeContains(t *testing.T) {
	r := RatingRange{Min: 3.8, Max: 4.3}
	if !r.Contains(3.0 + 0.8) {
		t.Error("Expected 3.0+0.8 to match a min of 3.8")
	}
	if !r.Contains(4.3) || r.Contains(4.4) || r.Contains(3.7) {
		t.Errorf("Unexpected bounds for %+v", r)
	}
}

func TestInMemoryPlacesDetailNotFound(t *testing.T) {
	m := NewInMemoryPlaces()
	_, err := m.PlaceDetail(context.Background(), "nope")
	if err == nil {
		t.Fatal("Expected error")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
