package geo

import (
	"math"
	"testing"
)

func TestDistanceZeroForSamePoint(t *testing.T) {
	p := Coordinates{Latitude: -23.5505, Longitude: -46.6333}
	d, err := DistanceMeters(p, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 0 {
		t.Fatalf("expected 0 distance, got %f", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := Coordinates{Latitude: -23.5505, Longitude: -46.6333}
	b := Coordinates{Latitude: -23.5600, Longitude: -46.6400}
	d1, err := DistanceMeters(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d2, err := DistanceMeters(b, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("expected symmetric distance, got %f and %f", d1, d2)
	}
}

func TestDistanceKnownFixes(t *testing.T) {
	post := Coordinates{Latitude: -23.5505, Longitude: -46.6333}

	near := Coordinates{Latitude: -23.5505, Longitude: -46.6340}
	d, err := DistanceMeters(post, near)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d < 60 || d > 80 {
		t.Fatalf("expected roughly 67m, got %f", d)
	}
	if !WithinRadius(d, 100) {
		t.Fatalf("expected %fm to be within 100m", d)
	}

	far := Coordinates{Latitude: -23.5600, Longitude: -46.6400}
	d, err = DistanceMeters(post, far)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d < 1000 || d > 1400 {
		t.Fatalf("expected roughly 1.2km, got %f", d)
	}
	if WithinRadius(d, 100) {
		t.Fatalf("expected %fm to be out of range", d)
	}
}

func TestRejectsNonFiniteInput(t *testing.T) {
	bad := Coordinates{Latitude: math.NaN(), Longitude: 0}
	if _, err := DistanceMeters(bad, Coordinates{}); err == nil {
		t.Fatalf("expected error for NaN latitude")
	}
	inf := Coordinates{Latitude: 0, Longitude: math.Inf(1)}
	if _, err := DistanceMeters(Coordinates{}, inf); err == nil {
		t.Fatalf("expected error for infinite longitude")
	}
}

func TestWithinRadiusDefault(t *testing.T) {
	if !WithinRadius(99, 0) {
		t.Fatalf("expected default radius of %fm to admit 99m", DefaultRadiusMeters)
	}
	if WithinRadius(101, 0) {
		t.Fatalf("expected default radius of %fm to reject 101m", DefaultRadiusMeters)
	}
}
