package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ankaa/models"
	"ankaa/services/notification/delivery"
)

func chatGateway(t *testing.T, handler http.HandlerFunc) *ChatTransport {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewChatTransport(srv.URL, "secret", time.Second, zap.NewNop())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestChatTransport_Send(t *testing.T) {
	var got struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}
	tr := chatGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{"sent": true, "id": "wamid-1"})
	})

	id, err := tr.Send(context.Background(), "5511987654321", models.ChannelPayload{Body: "🔔 *Hi*"})
	require.NoError(t, err)
	assert.Equal(t, "wamid-1", id)
	assert.Equal(t, "5511987654321", got.To)
	assert.Equal(t, "🔔 *Hi*", got.Text)
}

func TestChatTransport_ConfirmationNoise(t *testing.T) {
	tr := chatGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"sent": true, "id": "wamid-2", "error": "ack timeout"})
	})

	id, err := tr.Send(context.Background(), "5511987654321", models.ChannelPayload{Body: "x"})
	assert.ErrorIs(t, err, delivery.ErrConfirmationNoise)
	assert.Equal(t, "wamid-2", id)
	assert.Equal(t, delivery.ClassConfirmationNoise, delivery.Classify(err))
}

func TestChatTransport_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]any
		want   delivery.Class
	}{
		{"not registered", http.StatusOK, map[string]any{"sent": false, "error": "number not registered"}, delivery.ClassRecipientInvalid},
		{"session down", http.StatusServiceUnavailable, map[string]any{"error": "client not ready"}, delivery.ClassTransportUnavailable},
		{"unknown contact", http.StatusNotFound, map[string]any{"error": "no such chat"}, delivery.ClassRecipientInvalid},
		{"throttled", http.StatusTooManyRequests, nil, delivery.ClassRateLimited},
		{"refused silently", http.StatusOK, map[string]any{"sent": false}, delivery.ClassUnclassified},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := chatGateway(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			})
			_, err := tr.Send(context.Background(), "5511987654321", models.ChannelPayload{Body: "x"})
			require.Error(t, err)
			assert.Equal(t, tc.want, delivery.Classify(err))
		})
	}
}

func TestChatTransport_ReadinessAndRegistration(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	tr := chatGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			writeJSON(w, http.StatusOK, map[string]any{"ready": ready.Load(), "state": "CONNECTED"})
		case "/contacts/5511987654321/registered":
			writeJSON(w, http.StatusOK, map[string]any{"registered": true})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"registered": false})
		}
	})
	ctx := context.Background()

	assert.True(t, tr.IsReady(ctx))
	ready.Store(false)
	assert.False(t, tr.IsReady(ctx))

	ok, err := tr.IsRegistered(ctx, "5511987654321")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tr.IsRegistered(ctx, "5511900000000")
	require.NoError(t, err)
	assert.False(t, ok)

	var _ RegistrationChecker = tr
}

func TestChatTransport_UnconfiguredIsNotReady(t *testing.T) {
	tr := NewChatTransport("", "", time.Second, zap.NewNop())
	assert.False(t, tr.IsReady(context.Background()))
}
