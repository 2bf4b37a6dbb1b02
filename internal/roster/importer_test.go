package roster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-checkin-backend/config"
	"event-checkin-backend/internal/checkin"
)

// mockRegistrar records what the importer hands to the directory.
type mockRegistrar struct {
	mu       sync.Mutex
	received []checkin.RegisterInput
}

func (m *mockRegistrar) RegisterMany(ctx context.Context, inputs []checkin.RegisterInput) (checkin.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, inputs...)
	res := checkin.BulkResult{}
	for _, in := range inputs {
		res.Added = append(res.Added, in.RegistrationID)
	}
	return res, nil
}

func rosterServer(t *testing.T, pages map[int][]Entry, total int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "fall-2026", payload["event"])
		page := int(payload["page"].(float64))

		var resp ApiResponse
		resp.Data.Page = page
		resp.Data.PageSize = 2
		resp.Data.Total = total
		resp.Data.Items = pages[page]
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestService_ImportOnce(t *testing.T) {
	server := rosterServer(t, map[int][]Entry{
		1: {{RegistrationID: "R1", Name: "Alice", Department: "CS", GraduationYear: 2026}, {RegistrationID: "R2", Name: "Bob"}},
		2: {{RegistrationID: "R3", Name: "Carol", Phone: "555-0101"}},
	}, 3)
	defer server.Close()

	reg := &mockRegistrar{}
	svc := NewService(&config.RosterConfig{
		URL:      server.URL,
		Headers:  map[string]string{"X-Api-Key": "secret"},
		PageSize: 2,
		Payload:  map[string]any{"event": "fall-2026"},
	}, reg)

	res, err := svc.ImportOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"R1", "R2", "R3"}, res.Added)
	require.Len(t, reg.received, 3)
	assert.Equal(t, checkin.RegisterInput{RegistrationID: "R1", Name: "Alice", Department: "CS", GraduationYear: 2026}, reg.received[0])
	assert.Equal(t, "555-0101", reg.received[2].Phone)
}

func TestService_ImportOnceAbortsWithoutItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	reg := &mockRegistrar{}
	svc := NewService(&config.RosterConfig{URL: server.URL, PageSize: 10}, reg)

	_, err := svc.ImportOnce(context.Background())
	assert.ErrorContains(t, err, "non-200 status code: 502")
	assert.Empty(t, reg.received)
}

func TestService_ImportOnceRejectsApplicationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ApiResponse{Code: 7})
	}))
	defer server.Close()

	svc := NewService(&config.RosterConfig{URL: server.URL, PageSize: 10}, &mockRegistrar{})
	_, err := svc.ImportOnce(context.Background())
	assert.ErrorContains(t, err, "non-zero application code: 7")
}

func TestService_ImportOnceRequiresURL(t *testing.T) {
	svc := NewService(&config.RosterConfig{PageSize: 10}, &mockRegistrar{})
	_, err := svc.ImportOnce(context.Background())
	assert.Error(t, err)
}
