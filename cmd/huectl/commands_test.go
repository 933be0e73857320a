package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/huebridge/internal/config"
)

func TestParseAssignments(t *testing.T) {
	p, err := parseAssignments([]string{"on=true", "bri=127", "xy=[0.5,0.4]", "effect=colorloop", "name=Desk lamp"})
	require.NoError(t, err)
	assert.Equal(t, true, p["on"])
	assert.Equal(t, 127.0, p["bri"])
	assert.Equal(t, []any{0.5, 0.4}, p["xy"])
	assert.Equal(t, "colorloop", p["effect"])
	assert.Equal(t, "Desk lamp", p["name"])

	_, err = parseAssignments([]string{"bri"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"=1"})
	assert.Error(t, err)
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs("1, 2,7")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 7}, ids)

	_, err = parseIDs("1,kitchen")
	assert.Error(t, err)
}

func TestReadRecord(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"a","refresh_token":"r"}`), 0o600))

	cfg := config.Default().Remote
	cfg.ClientID = "id"
	cfg.ClientSecret = "secret"

	rec, err := readRecord(path, cfg, now)
	require.NoError(t, err)
	assert.Equal(t, "id", rec.ClientID)
	assert.Equal(t, "secret", rec.ClientSecret)
	assert.Equal(t, now.Add(7*24*time.Hour), rec.AccessTokenExpiry)
	assert.Equal(t, now.Add(112*24*time.Hour), rec.RefreshTokenExpiry)

	_, err = readRecord(path, config.Default().Remote, now)
	assert.Error(t, err)
}

// bridgeServer serves one light and records writes.
func bridgeServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var writes []string

	r := chi.NewRouter()
	r.Get("/api/user", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"lights":{"1":{"name":"Kitchen","state":{"on":true,"bri":254}}},"groups":{},"config":{"name":"Philips hue"}}`))
	})
	r.Get("/api/user/lights", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"1":{"name":"Kitchen","state":{"on":true,"bri":254}}}`))
	})
	r.Put("/api/user/lights/{id}/state", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		writes = append(writes, r.URL.Path+" "+string(body))

		var attrs map[string]any
		_ = json.Unmarshal(body, &attrs)
		var reply []any
		for k, v := range attrs {
			reply = append(reply, map[string]any{"success": map[string]any{r.URL.Path + "/" + k: v}})
		}
		_ = json.NewEncoder(w).Encode(reply)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, &writes
}

func TestRun_SetAndList(t *testing.T) {
	srv, writes := bridgeServer(t)

	var buf bytes.Buffer
	out = &buf
	t.Cleanup(func() { out = os.Stdout })

	cfg := config.Default()
	cfg.Bridge.Address = srv.URL
	cfg.Bridge.Username = "user"
	cfg.Bridge.RateLimitRPS = -1

	require.NoError(t, run(context.Background(), cfg, []string{"set", "light", "Kitchen", "bri=127"}))
	assert.Equal(t, []string{`/api/user/lights/1/state {"bri":127}`}, *writes)
	assert.Contains(t, buf.String(), `"bri": 127`)

	buf.Reset()
	require.NoError(t, run(context.Background(), cfg, []string{"list", "lights"}))
	assert.Equal(t, "1\tKitchen\n", buf.String())
}

func TestRun_Refresh(t *testing.T) {
	srv, _ := bridgeServer(t)

	var buf bytes.Buffer
	out = &buf
	t.Cleanup(func() { out = os.Stdout })

	cfg := config.Default()
	cfg.Bridge.Address = srv.URL
	cfg.Bridge.Username = "user"
	cfg.Bridge.RateLimitRPS = -1

	before := time.Now().Add(-time.Second)
	require.NoError(t, run(context.Background(), cfg, []string{"refresh"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	fields := strings.Split(lines[0], "\t")
	require.Len(t, fields, 3)
	assert.Equal(t, []string{"lights", "1"}, fields[:2])
	loaded, err := time.Parse(time.RFC3339, fields[2])
	require.NoError(t, err)
	assert.False(t, loaded.Before(before))
	assert.True(t, strings.HasPrefix(lines[1], "groups\t0\t"), lines[1])
}

func TestRun_UsageErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Bridge.Address = "127.0.0.1:1"
	cfg.Bridge.Username = "user"

	for _, args := range [][]string{
		{"bogus"},
		{"get", "light"},
		{"set", "bulb", "1", "on=true"},
		{"delete", "light", "1"},
		{"create", "rainbow"},
	} {
		err := run(context.Background(), cfg, args)
		var uerr usageError
		assert.ErrorAs(t, err, &uerr, args)
	}
}
