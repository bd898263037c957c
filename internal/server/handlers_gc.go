package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"cosensync/internal/api"
	"cosensync/internal/extract"
	"cosensync/internal/models"
	"cosensync/internal/store"
)

// multipartOverhead leaves room for boundaries and part headers on top of
// the export size limit.
const multipartOverhead int64 = 64 << 10

func (s *Server) handleGC(w http.ResponseWriter, r *http.Request) {
	dryRun, err := queryBool(r, "dry_run")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	payload, err := s.readExport(w, r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.withLimiter(w, r, s.gcLimiter, "gc", func() {
		result, err := s.collector.CollectPayload(r.Context(), payload, dryRun)
		if err != nil {
			s.writeServiceError(w, r, classifyGCError(err))
			return
		}
		s.writeJSON(w, http.StatusOK, api.NewGCResponse(result))
	})
}

// readExport returns the export payload from either a multipart "backup"
// field or the raw request body. Multipart temp files are removed before it
// returns.
func (s *Server) readExport(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxExportBytes)
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, classifyMultipartError(err)
		}
		if len(payload) == 0 {
			return nil, badRequestCode(fmt.Errorf("backup export is required"), ErrCodeMissingRequired)
		}
		return payload, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxExportBytes+multipartOverhead)
	if err := r.ParseMultipartForm(s.opts.MultipartMaxMemory); err != nil {
		return nil, classifyMultipartError(err)
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.log().Warn("remove multipart temp files", "error", err)
		}
	}()

	file, _, err := formFile(r, api.BackupField)
	if err != nil {
		return nil, badRequestCode(fmt.Errorf("backup file is required"), ErrCodeMissingRequired)
	}
	defer file.Close()

	payload, err := io.ReadAll(io.LimitReader(file, s.opts.MaxExportBytes+1))
	if err != nil {
		return nil, internalError(fmt.Errorf("read backup: %w", err))
	}
	if int64(len(payload)) > s.opts.MaxExportBytes {
		return nil, badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}
	return payload, nil
}

func classifyGCError(err error) error {
	var parseErr *extract.ParseError
	if errors.As(err, &parseErr) {
		return badRequestCode(fmt.Errorf("backup is not valid JSON: %s", parseErr.Reason), ErrCodeInvalidJSON)
	}
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeGCFailed, err)
}

func (s *Server) handleListGCRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryIntDefault(r, "limit", store.DefaultRunsLimit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if s.journal == nil {
		s.writeJSON(w, http.StatusOK, api.GCRunsResponse{Runs: []models.GCRun{}})
		return
	}

	runs, err := s.journal.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, makeAPIError(http.StatusInternalServerError, "internal", ErrCodeJournal, err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.GCRunsResponse{Runs: runs})
}
