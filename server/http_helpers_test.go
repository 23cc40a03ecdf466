package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/astralux/licensing/pkg/license"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWithRequestContextSetsID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withRequestContext(zerolog.Nop()))
	r.GET("/ping", func(c *gin.Context) {
		require.NotEmpty(t, requestID(c))
		c.Status(http.StatusOK)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotEmpty(t, resp.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "upstream-id")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, "upstream-id", resp.Header().Get(requestIDHeader))
}

func TestRespondErrorBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withRequestContext(zerolog.Nop()))
	r.GET("/fail", withResultKey("valid"), func(c *gin.Context) {
		respondLicenseError(c, license.ErrHwidMismatch, zerolog.Nop())
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.Equal(t, http.StatusForbidden, resp.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, false, body["valid"])
	require.Equal(t, "HWID_MISMATCH", body["code"])
	require.Equal(t, resp.Header().Get(requestIDHeader), body["request_id"])
}

func TestRespondLicenseErrorHidesStoreCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/fail", func(c *gin.Context) {
		respondLicenseError(c, errors.New("pq: password authentication failed"), zerolog.Nop())
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.NotContains(t, resp.Body.String(), "password")
	require.Equal(t, "1", resp.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, false, body["success"])
	require.Equal(t, "STORE_UNAVAILABLE", body["code"])
}

func TestStatusFor(t *testing.T) {
	cases := map[license.Kind]int{
		license.KindUnauthorized:      http.StatusUnauthorized,
		license.KindNotFound:          http.StatusNotFound,
		license.KindRevoked:           http.StatusForbidden,
		license.KindNotRedeemed:       http.StatusForbidden,
		license.KindAlreadyClaimed:    http.StatusForbidden,
		license.KindHwidMismatch:      http.StatusForbidden,
		license.KindNoResetsRemaining: http.StatusForbidden,
		license.KindStoreUnavailable:  http.StatusServiceUnavailable,
		license.KindInvalidInput:      http.StatusBadRequest,
	}
	for kind, want := range cases {
		require.Equal(t, want, statusFor(kind), string(kind))
	}
}
