package main

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"cosensync/internal/api"
	"cosensync/internal/models"
)

func captureStdout(t *testing.T, formatName string) *bytes.Buffer {
	t.Helper()
	prevOut, prevFormatter := stdout, outputFormatter
	buf := &bytes.Buffer{}
	stdout = buf
	t.Cleanup(func() {
		stdout = prevOut
		outputFormatter = prevFormatter
	})
	if err := setOutputFormat(formatName); err != nil {
		t.Fatalf("set format: %v", err)
	}
	return buf
}

func TestWriteOutputText(t *testing.T) {
	buf := captureStdout(t, "text")

	resp := api.UploadResponse{URL: "http://127.0.0.1:5050/uploads/a.png", Size: 2048, MediaType: "image/png"}
	if err := writeOutput(resp, func(w io.Writer) error { return writeUploadText(w, resp) }); err != nil {
		t.Fatalf("write output: %v", err)
	}
	if got := buf.String(); got != "http://127.0.0.1:5050/uploads/a.png\t2.0 KiB\timage/png\n" {
		t.Fatalf("unexpected text output %q", got)
	}
}

func TestWriteOutputJSON(t *testing.T) {
	buf := captureStdout(t, "json")

	resp := api.GCResponse{Success: true, DeletedFiles: []string{}, FailedFiles: []string{}}
	called := false
	err := writeOutput(resp, func(io.Writer) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("write output: %v", err)
	}
	if called {
		t.Fatal("text renderer should not run for json output")
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["deletedFiles"] == nil {
		t.Fatalf("expected deletedFiles array, got %v", decoded)
	}
}

func TestWriteOutputYAML(t *testing.T) {
	buf := captureStdout(t, "yaml")

	resp := api.InfoResponse{Version: "dev", StorageBackend: "local", Mount: "/uploads", StoredCount: 3}
	if err := writeOutput(resp, func(io.Writer) error { return nil }); err != nil {
		t.Fatalf("write output: %v", err)
	}
	if !strings.Contains(buf.String(), "storage_backend: local") {
		t.Fatalf("unexpected yaml output %q", buf.String())
	}
}

func TestSetOutputFormatRejectsUnknown(t *testing.T) {
	prev := outputFormatter
	t.Cleanup(func() { outputFormatter = prev })
	if err := setOutputFormat("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWriteGCText(t *testing.T) {
	var buf bytes.Buffer
	resp := api.GCResponse{
		DeletedFiles:    []string{"a.png", "b.jpg"},
		FailedFiles:     []string{"c.gif"},
		ReferencedCount: 4,
		StoredCount:     7,
	}
	if err := writeGCText(&buf, resp); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"referenced: 4", "stored: 7", "deleted: 2", "  - a.png", "failed: 1", "  - c.gif"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestWriteGCTextDryRun(t *testing.T) {
	var buf bytes.Buffer
	resp := api.GCResponse{DryRun: true, DeletedFiles: []string{}, OrphanedFiles: []string{"a.png"}}
	if err := writeGCText(&buf, resp); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "would delete: 1") {
		t.Fatalf("expected dry-run wording, got %q", buf.String())
	}
	if strings.Contains(buf.String(), "failed:") {
		t.Fatalf("unexpected failed section in %q", buf.String())
	}
}

func TestWriteGCRunsText(t *testing.T) {
	var buf bytes.Buffer
	if err := writeGCRunsText(&buf, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "no gc runs recorded\n" {
		t.Fatalf("unexpected empty output %q", buf.String())
	}

	buf.Reset()
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	runs := []models.GCRun{{
		ID:            9,
		StartedAt:     started,
		FinishedAt:    started.Add(1500 * time.Millisecond),
		DryRun:        true,
		StoredCount:   3,
		OrphanedCount: 1,
	}}
	if err := writeGCRunsText(&buf, runs); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"#9", "2026-01-02T03:04:05Z", "dry-run", "orphaned=1", "took 1.5s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}
