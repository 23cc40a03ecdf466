package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/astralux/licensing/pkg/license"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetrier(noSleep(NewRetrier(1, 1, 3)))}, opts...)
	return New(srv.URL+"/", opts...)
}

func TestValidateSendsBodyAndDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/validate", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "ASTRALUX-AAAA-BBBB-CCCC", body["license_key"])
		require.Equal(t, "hw-1", body["hwid"])
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": true, "message": license.MessageBound})
	})

	res, err := c.Validate(context.Background(), "ASTRALUX-AAAA-BBBB-CCCC", "hw-1")
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, license.MessageBound, res.Message)
}

func TestRedeemPostsToRedeemEndpoint(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/redeem", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "hw-3", body["hwid"])
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"valid": false, "code": "STORE_UNAVAILABLE"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": true, "message": license.MessageValid})
	})

	res, err := c.Redeem(context.Background(), "ASTRALUX-AAAA-BBBB-CCCC", "hw-3")
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, license.MessageValid, res.Message)
	require.Equal(t, int32(2), calls.Load())
}

func TestErrorBodyBecomesLicenseError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"valid":      false,
			"error":      "hwid mismatch",
			"code":       "HWID_MISMATCH",
			"request_id": "req-1",
		})
	})

	_, err := c.Validate(context.Background(), "ASTRALUX-AAAA-BBBB-CCCC", "hw-2")
	require.ErrorIs(t, err, license.ErrHwidMismatch)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "req-1", apiErr.RequestID)
	require.Contains(t, apiErr.Error(), "HWID_MISMATCH")
}

func TestAdminCallsCarryBearerAndRetry503(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer top-secret", r.Header.Get("Authorization"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "code": "STORE_UNAVAILABLE"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "remaining_resets": 0})
	}, WithAdminSecret("top-secret"))

	remaining, err := c.ResetHwid(context.Background(), "", "user1")
	require.NoError(t, err)
	require.Zero(t, remaining)
	require.Equal(t, int32(2), calls.Load())
}

func TestInspectEscapesKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/licenses/ASTRALUX-AAAA-BBBB-CCCC", r.URL.Path)
		_ = json.NewEncoder(w).Encode(license.License{Key: "ASTRALUX-AAAA-BBBB-CCCC", OwnerIdentity: "user1", Version: 3})
	}, WithAdminSecret("s"))

	l, err := c.Inspect(context.Background(), "ASTRALUX-AAAA-BBBB-CCCC")
	require.NoError(t, err)
	require.Equal(t, "user1", l.OwnerIdentity)
	require.Equal(t, int64(3), l.Version)
}

func TestErrorWithoutBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	err := c.Claim(context.Background(), "k", "o")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "Not Found", apiErr.Error())
}
