package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/astralux/licensing/pkg/license"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/check-share", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "unauthorized", "code": "UNAUTHORIZED"})
			return
		}
		_ = json.NewEncoder(w).Encode(license.ShareReport{
			LicenseKey:     "ASTRALUX-AAAA-BBBB-CCCC",
			Classification: license.ClassSuspicious,
			DistinctHwids:  2,
			DistinctIPs:    3,
			SampleHwids:    []string{"hw-a", "hw-b"},
		})
	})
	mux.HandleFunc("/api/licenses/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(license.License{
			Key:           "ASTRALUX-AAAA-BBBB-CCCC",
			OwnerIdentity: "user1",
			Revoked:       true,
			CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Version:       4,
		})
	})
	mux.HandleFunc("/api/validate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": false, "error": "license revoked", "code": "REVOKED", "request_id": "r-1"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckShareText(t *testing.T) {
	srv := fakeServer(t)
	out, err := runCLI(t, "--server", srv.URL, "--admin-secret", "s3cret", "check-share", "ASTRALUX-AAAA-BBBB-CCCC")
	require.NoError(t, err)
	goldie.New(t).Assert(t, "check_share", []byte(out))
}

func TestCheckShareJSON(t *testing.T) {
	srv := fakeServer(t)
	out, err := runCLI(t, "--server", srv.URL, "--admin-secret", "s3cret", "--json", "check-share", "ASTRALUX-AAAA-BBBB-CCCC")
	require.NoError(t, err)
	goldie.New(t).Assert(t, "check_share_json", []byte(out))
}

func TestInspectText(t *testing.T) {
	srv := fakeServer(t)
	out, err := runCLI(t, "--server", srv.URL, "--admin-secret", "s3cret", "inspect", "ASTRALUX-AAAA-BBBB-CCCC")
	require.NoError(t, err)
	goldie.New(t).Assert(t, "inspect", []byte(out))
}

func TestCommandErrors(t *testing.T) {
	srv := fakeServer(t)

	_, err := runCLI(t, "--server", srv.URL, "--admin-secret", "wrong", "check-share", "ASTRALUX-AAAA-BBBB-CCCC")
	require.ErrorIs(t, err, license.ErrUnauthorized)

	_, err = runCLI(t, "--server", srv.URL, "validate", "ASTRALUX-AAAA-BBBB-CCCC", "--hwid", "A")
	require.ErrorIs(t, err, license.ErrRevoked)
	require.Contains(t, err.Error(), "r-1")

	_, err = runCLI(t, "--server", srv.URL, "reset-hwid", "ASTRALUX-AAAA-BBBB-CCCC", "--owner", "user1")
	require.Error(t, err)
	_, err = runCLI(t, "--server", srv.URL, "reset-hwid")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	require.Equal(t, "licensectl version dev\n", out)
}
