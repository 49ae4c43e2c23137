package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"go.uber.org/zap"
)

var redline = domain.Item{AppID: "730", MarketHashName: "AK-47 | Redline (Field-Tested)", Name: "AK-47 | Redline"}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *MarketClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewMarketClient(MarketConfig{
		BaseURL:       srv.URL,
		Token:         "secret",
		Timeout:       2 * time.Second,
		MaxRetries:    retries,
		RetryInterval: time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestMarketClient_Price(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pricePath, r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		assert.Equal(t, "730", r.URL.Query().Get("appid"))
		assert.Equal(t, redline.MarketHashName, r.URL.Query().Get("market_hash_name"))
		assert.Equal(t, "true", r.URL.Query().Get("force_refresh"))
		writeJSON(w, http.StatusOK, `{"steam_price":"$12.50","market_csgo_price":"11.90","lis_skins_price":"N/A"}`)
	}, 0)

	q, err := c.Price(context.Background(), redline, true)
	require.NoError(t, err)
	assert.True(t, q.Steam.Amount.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, q.Market.Amount.Equal(decimal.RequireFromString("11.9")))
	assert.Equal(t, domain.PriceUnavailable, q.LisSkins.Status)
}

func TestMarketClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, expected: ErrRateLimited},
		{name: "unauthorized", status: http.StatusUnauthorized, expected: ErrNotAuthenticated},
		{name: "not found", status: http.StatusNotFound, expected: ErrNotFound},
		{name: "server error", status: http.StatusBadGateway, expected: ErrNetworkFailure},
		{name: "bad request", status: http.StatusBadRequest, expected: ErrRequestFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, `{"detail":"nope"}`)
			}, 0)

			_, err := c.Price(context.Background(), redline, false)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestMarketClient_RetriesOnlyTransient(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"history":[["Mar 01 2024 01: +0","1.00"]]}`)
	}, 3)

	h, err := c.History(context.Background(), redline)
	require.NoError(t, err)
	assert.Len(t, h, 1)
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	limited := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusTooManyRequests, `{}`)
	}, 3)
	_, err = limited.History(context.Background(), redline)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load(), "429 must not be retried")
}

func TestMarketClient_PredictPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("horizon"))
		writeJSON(w, http.StatusOK, `{
			"last_known_date": "Mar 01 2024",
			"last_known_price": 10.0,
			"predictions": [{"date": "Mar 02 2024", "predicted_price": 10.5}, {"date": "Mar 03 2024", "predicted_price": "11"}]
		}`)
	}, 0)

	raw, err := c.PredictPrice(context.Background(), redline, 7)
	require.NoError(t, err)
	assert.Equal(t, "Mar 01 2024", raw.LastKnownDate)
	assert.True(t, raw.LastKnownPrice.Amount.Equal(decimal.NewFromInt(10)))
	require.Len(t, raw.Predictions, 2)
	assert.True(t, raw.Predictions[1].PredictedPrice.Amount.Equal(decimal.NewFromInt(11)))
}

func TestMarketClient_Recommendations(t *testing.T) {
	var stored []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, recommendationsPath, r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			var snap domain.RecommendationSnapshot
			require.NoError(t, json.NewDecoder(r.Body).Decode(&snap))
			stored, _ = json.Marshal(snap)
			writeJSON(w, http.StatusOK, `{"status":"ok"}`)
		default:
			writeJSON(w, http.StatusOK, string(stored))
		}
	}, 0)

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	snap := domain.RecommendationSnapshot{
		ID:        "run-1",
		Timestamp: ts,
		All: []domain.RecommendationRecord{{
			Item:          redline,
			CurrentPrice:  domain.NewPrice(decimal.NewFromInt(10), "$"),
			OverallChange: decimal.NewFromInt(5),
		}},
	}
	require.NoError(t, c.SaveRecommendations(context.Background(), snap))

	got, err := c.LastRecommendations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
	assert.True(t, got.Timestamp.Equal(ts))
	require.Len(t, got.All, 1)
	assert.True(t, got.All[0].OverallChange.Equal(decimal.NewFromInt(5)))
}

func TestMarketClient_FavoritesAndReset(t *testing.T) {
	var resets atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case favoritesPath:
			writeJSON(w, http.StatusOK, `{"items":[{"appid":"730","market_hash_name":"AWP | Asiimov (Field-Tested)","name":"AWP | Asiimov"}]}`)
		case resetCachePath:
			resets.Add(1)
			writeJSON(w, http.StatusOK, `{"message":"cache cleared"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, 0)

	items, err := c.Favorites(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "AWP | Asiimov (Field-Tested)", items[0].MarketHashName)

	require.NoError(t, c.ResetCache(context.Background()))
	assert.Equal(t, int32(1), resets.Load())
}

func TestNewMarketClient_RequiresBaseURL(t *testing.T) {
	_, err := NewMarketClient(MarketConfig{}, nil)
	assert.Error(t, err)
}
