package upstream

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfportal/internal/domain/incident"
)

func TestTimelineRequestShape(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"limit":             r.URL.Query().Get("limit"),
			"source":            r.URL.Query().Get("source"),
			"prioritize_coords": r.URL.Query().Get("prioritize_coords"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [
			{"source_table": "sfpd_incidents", "incident_time": "2024-03-15 08:30:00",
			 "incident_type": "ASSAULT", "latitude": "37.7749", "longitude": "-122.4194"}
		], "count": 1}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, "test-agent", 1<<20)
	records, err := client.Timeline(context.Background(), TimelineQuery{
		Source:           incident.SourceSFPDIncidents,
		Limit:            500,
		PrioritizeCoords: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "/api/incidents/timeline", gotPath)
	assert.Equal(t, "500", gotQuery["limit"])
	assert.Equal(t, "sfpd_incidents", gotQuery["source"])
	assert.Equal(t, "true", gotQuery["prioritize_coords"])

	require.Len(t, records, 1)
	assert.Equal(t, "ASSAULT", records[0].IncidentType)
	assert.Equal(t, 37.7749, records[0].Latitude.Float())
}

func TestTimelineUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "database unavailable"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, "test-agent", 1<<20)
	_, err := client.Timeline(context.Background(), TimelineQuery{Limit: 500})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestTimelineNonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, "test-agent", 1<<20)
	_, err := client.Timeline(context.Background(), TimelineQuery{Limit: 500})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestTimelineContextCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(server.URL, 30*time.Second, "test-agent", 1<<20)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.Timeline(ctx, TimelineQuery{Limit: 500})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimelineMalformedCoordinatesSurviveDecoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [
			{"source_table": "311_service_requests", "latitude": null, "longitude": "garbage"}
		], "count": 1}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, "test-agent", 1<<20)
	records, err := client.Timeline(context.Background(), TimelineQuery{Limit: 500})

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, math.IsNaN(records[0].Latitude.Float()))
	assert.True(t, math.IsNaN(records[0].Longitude.Float()))
}
