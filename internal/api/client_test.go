package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTimeoutFromEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})

	t.Run("duration format", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "45s")
		if got := httpTimeoutFromEnv(); got != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", got)
		}
	})

	t.Run("integer seconds", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "25")
		if got := httpTimeoutFromEnv(); got != 25*time.Second {
			t.Fatalf("expected 25s timeout, got %v", got)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "invalid")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})
}

func TestUploadSendsMultipartImage(t *testing.T) {
	var gotName, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile(UploadField)
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotName = header.Filename
		gotType = header.Header.Get("Content-Type")
		gotBody = string(data)
		_ = json.NewEncoder(w).Encode(UploadResponse{Success: true, URL: "http://x/uploads/id.png", Filename: "id.png", Size: int64(len(data))})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Upload(context.Background(), "cat.png", "image/png", strings.NewReader("pixels"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !resp.Success || resp.Filename != "id.png" || resp.Size != 6 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotName != "cat.png" || gotType != "image/png" || gotBody != "pixels" {
		t.Fatalf("unexpected part: name=%q type=%q body=%q", gotName, gotType, gotBody)
	}
}

func TestGCSendsRawExport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/gc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("dry_run") != "true" {
			t.Errorf("expected dry_run=true, got %q", r.URL.RawQuery)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"pages":[]}` {
			t.Errorf("unexpected body %q", body)
		}
		_ = json.NewEncoder(w).Encode(GCResponse{Success: true, DeletedFiles: []string{}, FailedFiles: []string{}, OrphanedFiles: []string{"a.png"}, DryRun: true})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).GC(context.Background(), strings.NewReader(`{"pages":[]}`), true)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if !resp.DryRun || len(resp.OrphanedFiles) != 1 || resp.DeletedCount != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestListGCRunsPassesLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "3" {
			t.Errorf("expected limit=3, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"runs":[{"id":7,"dry_run":true,"deleted_files":[],"failed_files":[]}]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).ListGCRuns(context.Background(), 3)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(resp.Runs) != 1 || resp.Runs[0].ID != 7 || !resp.Runs[0].DryRun {
		t.Fatalf("unexpected runs: %+v", resp.Runs)
	}
}

func TestDecodeErrorReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"backup is not valid JSON","code":"invalid_argument","error_code":1002}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GC(context.Background(), strings.NewReader("nope"), false)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T (%v)", err, err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != "invalid_argument" || apiErr.ErrorCode != 1002 {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if apiErr.Error() != "invalid_argument: backup is not valid JSON" {
		t.Fatalf("unexpected message %q", apiErr.Error())
	}
}

func TestDecodeErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Ping(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("expected 502 api error, got %v", err)
	}
}
