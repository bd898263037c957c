package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"cosensync/internal/api"
	"cosensync/internal/format"
	"cosensync/internal/models"
)

var (
	outputFormatter format.Formatter
	stdout          io.Writer = os.Stdout
)

func setOutputFormat(name string) error {
	f, err := format.New(name)
	if err != nil {
		return err
	}
	outputFormatter = f
	return nil
}

// writeOutput renders payload with the structured formatter when one is
// selected, otherwise it calls text.
func writeOutput(payload any, text func(w io.Writer) error) error {
	if outputFormatter != nil {
		return outputFormatter.Write(stdout, payload)
	}
	return text(stdout)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeUploadText(w io.Writer, resp api.UploadResponse) error {
	_, err := fmt.Fprintf(w, "%s\t%s\t%s\n", resp.URL, humanize.IBytes(uint64(resp.Size)), resp.MediaType)
	return err
}

func writeGCText(w io.Writer, resp api.GCResponse) error {
	verb := "deleted"
	files := resp.DeletedFiles
	if resp.DryRun {
		verb = "would delete"
		files = resp.OrphanedFiles
	}

	lines := []string{
		fmt.Sprintf("referenced: %d", resp.ReferencedCount),
		fmt.Sprintf("stored: %d", resp.StoredCount),
		fmt.Sprintf("%s: %d", verb, len(files)),
	}
	for _, id := range files {
		lines = append(lines, "  - "+id)
	}
	if len(resp.FailedFiles) > 0 {
		lines = append(lines, fmt.Sprintf("failed: %d", len(resp.FailedFiles)))
		for _, id := range resp.FailedFiles {
			lines = append(lines, "  - "+id)
		}
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

func writeGCRunsText(w io.Writer, runs []models.GCRun) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no gc runs recorded")
		return err
	}
	for _, run := range runs {
		mode := "apply"
		if run.DryRun {
			mode = "dry-run"
		}
		_, err := fmt.Fprintf(w, "#%d %s %-7s deleted=%d failed=%d orphaned=%d stored=%d took %s (%s)\n",
			run.ID,
			formatTime(run.StartedAt),
			mode,
			run.DeletedCount(),
			len(run.FailedFiles),
			run.OrphanedCount,
			run.StoredCount,
			run.Duration().Round(time.Millisecond),
			humanize.Time(run.StartedAt),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeInfoText(w io.Writer, info api.InfoResponse) error {
	lines := []string{
		fmt.Sprintf("version: %s", info.Version),
		fmt.Sprintf("storage_backend: %s", info.StorageBackend),
		fmt.Sprintf("mount: %s", info.Mount),
		fmt.Sprintf("stored_count: %s", humanize.Comma(int64(info.StoredCount))),
		fmt.Sprintf("journal_enabled: %t", info.JournalEnabled),
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
