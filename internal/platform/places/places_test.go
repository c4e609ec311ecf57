package places

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient_RequiresKey(t *testing.T) {
	if _, err := NewClient("", ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNearbyHospitals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps/api/place/nearbysearch/json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("type") != "hospital" || q.Get("radius") != "3000" || q.Get("location") == "" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"results": [
				{"name": "Kenyatta National Hospital", "vicinity": "Hospital Rd, Nairobi",
				 "rating": 4.1, "user_ratings_total": 2100,
				 "geometry": {"location": {"lat": -1.3006, "lng": 36.8070}}},
				{"name": "New Clinic", "vicinity": "Ngong Rd",
				 "geometry": {"location": {"lat": -1.30, "lng": 36.78}}}
			]
		}`))
	}))
	defer srv.Close()

	c, err := NewClient("test-key", srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	clinics, err := c.NearbyHospitals(context.Background(), -1.2921, 36.8219, 3000)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(clinics) != 2 {
		t.Fatalf("expected 2 clinics, got %d", len(clinics))
	}
	if clinics[0].Name != "Kenyatta National Hospital" || clinics[0].Rating == nil || *clinics[0].UserRatingsTotal != 2100 {
		t.Errorf("unexpected first clinic %+v", clinics[0])
	}
	if clinics[0].Location.Lat != -1.3006 {
		t.Errorf("expected location to be copied, got %+v", clinics[0].Location)
	}
	if clinics[1].Rating != nil || clinics[1].UserRatingsTotal != nil {
		t.Errorf("expected nil ratings for unrated clinic, got %+v", clinics[1])
	}
}

func TestNearbyHospitals_UpstreamDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "REQUEST_DENIED", "error_message": "The provided API key is invalid."}`))
	}))
	defer srv.Close()

	c, _ := NewClient("bad-key", srv.URL)
	if _, err := c.NearbyHospitals(context.Background(), 0, 0, 100); err == nil {
		t.Fatal("expected error for denied request")
	}
}
