package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wa-resolver/internal/adapter/sink"
	"wa-resolver/internal/domain"
)

func writeConfig(t *testing.T, sinkType string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := "logger:\n  level: debug\n  output: " + filepath.Join(dir, "wa.log") + "\n" +
		"viewer:\n  window_id: w1\n" +
		"sink:\n  type: " + sinkType + "\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func annotationServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wa/c1":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"anno-1","type":"Annotation"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseArgs(t *testing.T) {
	t.Setenv("WA_CONFIG", "")

	tests := []struct {
		name     string
		args     []string
		wantPath string
		wantIDs  []string
		wantErr  string
	}{
		{"defaults", nil, "config.yaml", nil, ""},
		{"config flag", []string{"--config", "a.yaml", "x"}, "a.yaml", []string{"x"}, ""},
		{"config equals", []string{"--config=b.yaml"}, "b.yaml", nil, ""},
		{"unknown flag", []string{"-v", "x", "y"}, "", nil, "unknown flag: -v"},
		{"unknown long flag", []string{"x", "--verbose"}, "", nil, "unknown flag: --verbose"},
		{"config without value", []string{"x", "--config"}, "", nil, "flag needs an argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ids, err := parseArgs(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, path)
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestParseArgsEnvConfig(t *testing.T) {
	t.Setenv("WA_CONFIG", "/etc/wa.yaml")
	path, _, err := parseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, "/etc/wa.yaml", path)
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCmd  string
		wantRest []string
	}{
		{"empty", nil, "resolve", nil},
		{"explicit resolve", []string{"resolve", "x"}, "resolve", []string{"x"}},
		{"derive", []string{"derive", "x"}, "derive", []string{"x"}},
		{"url id", []string{"https://example.org/iiif/p1"}, "resolve", []string{"https://example.org/iiif/p1"}},
		{"urn id", []string{"urn:iiif:canvas:p1"}, "resolve", []string{"urn:iiif:canvas:p1"}},
		{"bare word id", []string{"canvas1"}, "resolve", []string{"canvas1"}},
		{"flag first", []string{"--config", "a.yaml"}, "resolve", []string{"--config", "a.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, rest := splitCommand(tt.args)
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestRunResolveUnknownFlag(t *testing.T) {
	err := runResolve(context.Background(), []string{"--verbose"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")

	assert.Error(t, runDerive([]string{"-x", "https://example.org/iiif/p1"}, &bytes.Buffer{}))
}

func TestRunDerive(t *testing.T) {
	var out bytes.Buffer
	err := runDerive([]string{
		"https://example.org/iiif/b/p1",
		"https://example.org/iiif3/b/p2",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t,
		"https://example.org/iiif/b/p1\thttps://example.org/wa/b/p1\n"+
			"https://example.org/iiif3/b/p2\thttps://example.org/wa/b/p2\n",
		out.String())
}

func TestRunDeriveErrors(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, runDerive(nil, &out))

	err := runDerive([]string{"https://example.org/iiif/p1", "iiif/relative"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Equal(t, "https://example.org/iiif/p1\thttps://example.org/wa/p1\n", out.String())
}

func TestRunResolveMemorySink(t *testing.T) {
	srv := annotationServer(t)
	cfgPath := writeConfig(t, "memory")

	var out bytes.Buffer
	err := runResolve(context.Background(), []string{
		"--config", cfgPath,
		srv.URL + "/iiif/c1",
		srv.URL + "/iiif3/missing",
	}, &out)
	require.NoError(t, err)

	var entries []sink.Entry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, srv.URL+"/iiif/c1", e.CanvasID)
	assert.Equal(t, srv.URL+"/wa/c1", e.EndpointURL)
	assert.Equal(t, srv.URL+"/wa/c1", e.Page.ID)
	assert.Equal(t, domain.AnnotationPageType, e.Page.Type)
	require.Len(t, e.Page.Items, 1)
	assert.JSONEq(t, `{"id":"anno-1","type":"Annotation"}`, string(e.Page.Items[0]))
}

func TestRunResolveStdoutSink(t *testing.T) {
	srv := annotationServer(t)
	cfgPath := writeConfig(t, "stdout")

	var out bytes.Buffer
	err := runResolve(context.Background(), []string{"--config", cfgPath, srv.URL + "/iiif/c1"}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"canvas_id":"`+srv.URL+`/iiif/c1"`)
	assert.Contains(t, lines[0], `"type":"AnnotationPage"`)
}

func TestRunResolveSQLiteSink(t *testing.T) {
	srv := annotationServer(t)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "annotations.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "logger:\n  output: " + filepath.Join(dir, "wa.log") + "\n" +
		"sink:\n  type: sqlite\n  path: " + dbPath + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	var out bytes.Buffer
	require.NoError(t, runResolve(context.Background(), []string{"--config", cfgPath, srv.URL + "/iiif/c1"}, &out))

	var printed []sink.Entry
	require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
	require.Len(t, printed, 1)
	assert.Equal(t, srv.URL+"/iiif/c1", printed[0].CanvasID)
	assert.Equal(t, srv.URL+"/wa/c1", printed[0].EndpointURL)
	assert.Equal(t, 1, printed[0].Deliveries)

	db, err := sink.NewSQLite(dbPath)
	require.NoError(t, err)
	defer db.Close()
	stored, err := db.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, printed[0].CanvasID, stored[0].CanvasID)
	require.Len(t, stored[0].Page.Items, 1)
	assert.JSONEq(t, string(printed[0].Page.Items[0]), string(stored[0].Page.Items[0]))
}

func TestRunResolveNoCanvases(t *testing.T) {
	cfgPath := writeConfig(t, "memory")

	var out bytes.Buffer
	require.NoError(t, runResolve(context.Background(), []string{"--config", cfgPath}, &out))
	assert.JSONEq(t, `[]`, out.String())
}

func TestRunResolveBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sink:\n  type: kafka\n"), 0o600))

	err := runResolve(context.Background(), []string{"--config", path}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config")
}

func TestShowUsage(t *testing.T) {
	var out bytes.Buffer
	showUsage(&out)
	assert.Contains(t, out.String(), "derive")
	assert.Contains(t, out.String(), "WA_*")
}
