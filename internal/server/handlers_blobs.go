package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"cosensync/internal/blobstore"
)

const immutableCacheControl = "public, max-age=31536000, immutable"

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("identifier")
	if err := blobstore.ValidateID(id); err != nil {
		s.writeServiceError(w, r, badRequestCode(fmt.Errorf("invalid identifier"), ErrCodeInvalidID))
		return
	}

	obj, err := s.blobs.Open(r.Context(), id)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			s.writeServiceError(w, r, notFoundCode(fmt.Errorf("file not found"), ErrCodeBlobNotFound))
			return
		}
		s.writeServiceError(w, r, storeFailure(err))
		return
	}
	defer obj.Reader.Close()

	w.Header().Set("Cache-Control", immutableCacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if mediaType := mime.TypeByExtension(filepath.Ext(id)); mediaType != "" {
		w.Header().Set("Content-Type", mediaType)
	}

	if rs, ok := obj.Reader.(io.ReadSeeker); ok {
		http.ServeContent(w, r, id, obj.ModTime, rs)
		return
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if obj.SizeBytes >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, obj.Reader); err != nil {
		s.log().Debug("stream blob", "id", id, "error", err)
	}
}
