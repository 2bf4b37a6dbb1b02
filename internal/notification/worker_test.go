package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"event-checkin-backend/internal/checkin"
	"event-checkin-backend/internal/db"
	"event-checkin-backend/internal/model"
	"event-checkin-backend/internal/store"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})
	return store.NewGormStore(gormDB)
}

func okResponse(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(bytes.NewReader(nil))}
}

func TestWorkerPool_ScanDecidedFiltersReasons(t *testing.T) {
	wp := NewWorkerPool(1, nil, &webpush.Options{}, []string{"unknown_tag"})

	wp.ScanDecided("T1", "ENTRANCE", checkin.Decision{Outcome: checkin.OutcomeAllowed})
	wp.ScanDecided("T1", "CAFETERIA", checkin.Decision{Outcome: checkin.OutcomeDenied, Reason: checkin.ReasonNoCredits})
	wp.ScanDecided("T9", "ENTRANCE", checkin.Decision{Outcome: checkin.OutcomeDenied, Reason: checkin.ReasonUnknownTag})

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, Alert{TagID: "T9", Location: "ENTRANCE", Reason: "UNKNOWN_TAG"}, job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for alert to be dispatched")
	}
	assert.Len(t, wp.Jobs(), 0)
}

func TestWorkerPool_DispatchDropsWhenFull(t *testing.T) {
	wp := NewWorkerPool(1, nil, &webpush.Options{}, nil)
	for i := 0; i < cap(wp.jobs)+5; i++ {
		wp.Dispatch(Alert{TagID: fmt.Sprintf("T%d", i)})
	}
	assert.Len(t, wp.Jobs(), cap(wp.jobs))
}

func TestWorkerPool_SendAlert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSubscription(ctx, &model.PushSubscription{Endpoint: "https://push.example/live", P256DH: "p", Auth: "a"}))
	require.NoError(t, s.UpsertSubscription(ctx, &model.PushSubscription{Endpoint: "https://push.example/gone", P256DH: "p", Auth: "a"}))

	var (
		mu       sync.Mutex
		sentTo   []string
		payloads [][]byte
	)
	wp := NewWorkerPool(1, s, &webpush.Options{}, []string{"UNKNOWN_TAG"})
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			mu.Lock()
			defer mu.Unlock()
			sentTo = append(sentTo, sub.Endpoint)
			payloads = append(payloads, payload)
			if strings.HasSuffix(sub.Endpoint, "/gone") {
				return okResponse(http.StatusGone), nil
			}
			return okResponse(http.StatusCreated), nil
		},
	}

	wp.sendAlert(ctx, Alert{TagID: "T9", Location: "ENTRANCE", Reason: "UNKNOWN_TAG"})

	assert.ElementsMatch(t, []string{"https://push.example/live", "https://push.example/gone"}, sentTo)

	var body map[string]any
	require.NoError(t, json.Unmarshal(payloads[0], &body))
	assert.Equal(t, "Scan denied", body["title"])
	assert.Equal(t, "UNKNOWN_TAG at ENTRANCE (tag T9)", body["body"])

	subs, err := s.ListSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example/live", subs[0].Endpoint)
}

func TestWorkerPool_StartProcessesJobs(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.UpsertSubscription(ctx, &model.PushSubscription{Endpoint: "https://push.example/a", P256DH: "p", Auth: "a"}))

	done := make(chan string, 1)
	wp := NewWorkerPool(2, s, &webpush.Options{}, []string{"ALREADY_INSIDE"})
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			done <- string(payload)
			return okResponse(http.StatusCreated), nil
		},
	}
	wp.Start(ctx)

	wp.ScanDecided("T1", "ENTRANCE", checkin.Decision{Outcome: checkin.OutcomeDenied, Reason: checkin.ReasonAlreadyInside, Name: "Alice"})

	select {
	case payload := <-done:
		assert.Contains(t, payload, "ALREADY_INSIDE at ENTRANCE: Alice (tag T1)")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alert to be sent")
	}
}
