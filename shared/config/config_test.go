package config

import "testing"

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestParseAnyCSV(t *testing.T) {
	raw := []any{"x", " ", "y"}
	got := parseAnyCSV(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0] != "x" || got[1] != "y" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestApplyConfigMapPatrolKeys(t *testing.T) {
	cfg := Config{}
	problems := make([]Problem, 0)
	applyConfigMap(&cfg, map[string]any{
		"GEOFENCE_RADIUS_M":     150,
		"PATROL_FIX_TIMEOUT_MS": "12000",
		"BLOB_BASE_URL":         " http://cdn.local/media ",
	}, &problems)
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %#v", problems)
	}
	if cfg.GeofenceRadiusM != 150 {
		t.Fatalf("unexpected radius: %f", cfg.GeofenceRadiusM)
	}
	if cfg.PatrolFixTimeoutMS != 12000 {
		t.Fatalf("unexpected fix timeout: %d", cfg.PatrolFixTimeoutMS)
	}
	if cfg.BlobBaseURL != "http://cdn.local/media" {
		t.Fatalf("unexpected blob base url: %q", cfg.BlobBaseURL)
	}
}

func TestApplyConfigMapReportsBadValues(t *testing.T) {
	cfg := Config{}
	problems := make([]Problem, 0)
	applyConfigMap(&cfg, map[string]any{
		"GEOFENCE_RADIUS_M": "not-a-number",
		"AUDIT_ENABLED":     "maybe",
	}, &problems)
	if len(problems) != 2 {
		t.Fatalf("expected 2 problems, got %#v", problems)
	}
}

func TestLoadDefaultsGeofence(t *testing.T) {
	t.Setenv("ENV", "test")
	cfg, _ := Load("api", 8080)
	if cfg.GeofenceRadiusM != 100 {
		t.Fatalf("expected default radius 100, got %f", cfg.GeofenceRadiusM)
	}
	if cfg.PatrolFixTimeoutMS != 10000 {
		t.Fatalf("expected default fix timeout 10000, got %d", cfg.PatrolFixTimeoutMS)
	}
	if cfg.PatrolFixMaxAgeMS != 0 {
		t.Fatalf("expected zero max fix age, got %d", cfg.PatrolFixMaxAgeMS)
	}
}
