package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFetchMods(t *testing.T) {
	var requestedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.String()
		w.Write([]byte(`{
			"results": [
				{"name": "bigger-cars", "latest_release": {"version": "1.3.0", "sha1": "bbb", "download_url": "/download/bigger-cars/1", "file_name": "bigger-cars_1.3.0.zip"}},
				{"name": "no-release"},
				{"latest_release": {"version": "0.1.0"}}
			]
		}`))
	}))
	defer server.Close()

	cachePath := filepath.Join(t.TempDir(), "mods-list.json")
	c := NewClient(server.URL+"/api/mods?version={version}", cachePath, "user", "tok")

	resp, err := c.FetchMods(context.Background(), "1.1")
	if err != nil {
		t.Fatalf("FetchMods failed: %v", err)
	}

	if requestedPath != "/api/mods?version=1.1" {
		t.Errorf("Got request path %s, want /api/mods?version=1.1", requestedPath)
	}
	if len(resp.Results) != 3 {
		t.Errorf("Got %d results, want 3", len(resp.Results))
	}

	// Raw response must be cached for debugging
	cached, err := os.ReadFile(cachePath)
	if err != nil {
		t.Fatalf("Catalog cache was not written: %v", err)
	}
	if !strings.Contains(string(cached), "bigger-cars") {
		t.Error("Catalog cache does not contain the raw response")
	}

	// Index skips entries with missing name or release
	index := BuildIndex(resp)
	if len(index) != 1 {
		t.Errorf("Got %d index entries, want 1", len(index))
	}
	if rel := index["bigger-cars"]; rel == nil || rel.Version != "1.3.0" {
		t.Errorf("Unexpected index entry: %+v", index["bigger-cars"])
	}
}

func TestFetchModsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL+"/api/mods?version={version}", "", "user", "tok")
	if _, err := c.FetchMods(context.Background(), "1.1"); err == nil {
		t.Error("Expected error for HTTP 500, got nil")
	}
}

func TestDownloadRelease(t *testing.T) {
	content := "zip-bytes"
	var cdnAuth, cdnQuery string

	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cdnAuth = r.Header.Get("Authorization")
		cdnQuery = r.URL.RawQuery
		w.Write([]byte(content))
	}))
	defer cdn.Close()

	var firstHopQuery string
	portal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firstHopQuery = r.URL.RawQuery
		http.Redirect(w, r, cdn.URL+"/files/x_1.0.zip?secret=signed", http.StatusFound)
	}))
	defer portal.Close()

	destDir := t.TempDir()
	c := NewClient("", "", "alice", "tok123", WithBaseURL(portal.URL))

	release := &Release{
		Version:     "1.0",
		DownloadURL: "/download/x/1",
		FileName:    "x_1.0.zip",
	}

	path, err := c.DownloadRelease(context.Background(), release, destDir)
	if err != nil {
		t.Fatalf("DownloadRelease failed: %v", err)
	}

	if path != filepath.Join(destDir, "x_1.0.zip") {
		t.Errorf("Got path %s, want %s", path, filepath.Join(destDir, "x_1.0.zip"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read downloaded file: %v", err)
	}
	if string(data) != content {
		t.Errorf("Got file content %q, want %q", data, content)
	}

	// First hop carries the credentials
	if !strings.Contains(firstHopQuery, "username=alice") || !strings.Contains(firstHopQuery, "token=tok123") {
		t.Errorf("First hop query missing credentials: %s", firstHopQuery)
	}

	// Second hop must be clean: only the signed URL, no credentials
	if cdnAuth != "" {
		t.Errorf("CDN request carried Authorization header: %s", cdnAuth)
	}
	if strings.Contains(cdnQuery, "token=tok123") || strings.Contains(cdnQuery, "username=") {
		t.Errorf("CDN request leaked credentials: %s", cdnQuery)
	}
}

func TestDownloadReleaseProtocolViolations(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "200 instead of redirect",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("unexpected body"))
			},
		},
		{
			name: "redirect without Location",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusFound)
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "portal down", http.StatusInternalServerError)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			portal := httptest.NewServer(tt.handler)
			defer portal.Close()

			c := NewClient("", "", "alice", "tok123", WithBaseURL(portal.URL))
			release := &Release{DownloadURL: "/download/x/1", FileName: "x_1.0.zip"}

			_, err := c.DownloadRelease(context.Background(), release, t.TempDir())
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if strings.Contains(err.Error(), "tok123") {
				t.Errorf("Error text leaked the token: %v", err)
			}
		})
	}
}

func TestDownloadReleaseCDNError(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "signature expired", http.StatusForbidden)
	}))
	defer cdn.Close()

	portal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, cdn.URL+"/files/x_1.0.zip", http.StatusFound)
	}))
	defer portal.Close()

	destDir := t.TempDir()
	c := NewClient("", "", "alice", "tok123", WithBaseURL(portal.URL))
	release := &Release{DownloadURL: "/download/x/1", FileName: "x_1.0.zip"}

	if _, err := c.DownloadRelease(context.Background(), release, destDir); err == nil {
		t.Fatal("Expected error for CDN 403, got nil")
	}

	if _, err := os.Stat(filepath.Join(destDir, "x_1.0.zip")); !os.IsNotExist(err) {
		t.Error("Failed download left a file in the destination directory")
	}
}
