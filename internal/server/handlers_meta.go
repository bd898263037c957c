package server

import (
	"net/http"

	"cosensync/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	ids, err := s.blobs.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, storeFailure(err))
		return
	}

	s.writeJSON(w, http.StatusOK, api.InfoResponse{
		Version:        s.opts.Version,
		StorageBackend: s.opts.StorageBackend,
		Mount:          s.opts.Mount,
		StoredCount:    len(ids),
		JournalEnabled: s.journal != nil,
	})
}
