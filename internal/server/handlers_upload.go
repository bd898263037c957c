package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"cosensync/internal/api"
	"cosensync/internal/blobstore"
	"cosensync/internal/ident"
)

const (
	sniffLen          = 3072
	fallbackExtension = ".bin"
)

var uploadFields = []string{api.UploadField, "file"}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MultipartMaxMemory); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.log().Warn("remove multipart temp files", "error", err)
		}
	}()

	file, header, err := formFile(r, uploadFields...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer file.Close()

	content := bufio.NewReaderSize(file, sniffLen)
	head, err := content.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		s.writeServiceError(w, r, internalError(fmt.Errorf("read upload: %w", err)))
		return
	}
	if len(head) == 0 {
		s.writeServiceError(w, r, badRequestCode(fmt.Errorf("uploaded file is empty"), ErrCodeMissingRequired))
		return
	}
	sniffed := mimetype.Detect(head)

	mediaType, err := s.resolveImageMediaType(header.Header.Get("Content-Type"), sniffed.String())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	ext := ident.NormalizeExtension(filepath.Ext(filepath.Base(header.Filename)))
	if ext == "" {
		ext = ident.NormalizeExtension(sniffed.Extension())
	}
	if ext == "" {
		// A bare UUID could never be referenced by an export line.
		ext = fallbackExtension
	}

	ctx := r.Context()
	id, err := ident.GenerateUnique(ext, func(candidate string) (bool, error) {
		return s.blobs.Exists(ctx, candidate)
	})
	if err != nil {
		s.writeServiceError(w, r, storeFailure(fmt.Errorf("allocate identifier: %w", err)))
		return
	}

	put, err := s.blobs.Put(ctx, id, content)
	if err != nil {
		s.writeServiceError(w, r, classifyPutError(err))
		return
	}

	s.log().Info("blob uploaded",
		"id", put.ID,
		"size_bytes", put.SizeBytes,
		"media_type", mediaType,
		"original_name", header.Filename,
	)

	s.writeJSON(w, http.StatusOK, api.UploadResponse{
		Success:   true,
		URL:       s.publicURL(r, put.ID),
		Filename:  put.ID,
		Size:      put.SizeBytes,
		Checksum:  put.Checksum,
		MediaType: mediaType,
	})
}

// resolveImageMediaType accepts an upload only when it is an image. The
// declared part type must be image/* when present; the sniffed type must be
// image/* when mismatch rejection is enabled or nothing was declared.
func (s *Server) resolveImageMediaType(declared, sniffed string) (string, error) {
	declaredNormalized, err := normalizeMediaType(declared)
	if err != nil {
		return "", err
	}
	sniffedNormalized, _ := normalizeMediaType(sniffed)

	if declaredNormalized != "" && !isImageMediaType(declaredNormalized) {
		return "", badRequestCode(fmt.Errorf("only image files can be uploaded (got %s)", declaredNormalized), ErrCodeUnsupportedMediaType)
	}
	if declaredNormalized == "" {
		if !isImageMediaType(sniffedNormalized) {
			return "", badRequestCode(fmt.Errorf("only image files can be uploaded"), ErrCodeUnsupportedMediaType)
		}
		return sniffedNormalized, nil
	}
	if s.opts.RejectMediaTypeMismatch && !isImageMediaType(sniffedNormalized) {
		return "", badRequestCode(fmt.Errorf("declared %s but content is %s", declaredNormalized, sniffedNormalized), ErrCodeMediaTypeMismatch)
	}
	if isImageMediaType(sniffedNormalized) {
		return sniffedNormalized, nil
	}
	return declaredNormalized, nil
}

func normalizeMediaType(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", badRequestCode(fmt.Errorf("invalid media type %q", raw), ErrCodeUnsupportedMediaType)
	}
	return strings.ToLower(strings.TrimSpace(parsed)), nil
}

func isImageMediaType(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/")
}

// formFile returns the first present file among fields.
func formFile(r *http.Request, fields ...string) (multipart.File, *multipart.FileHeader, error) {
	for _, field := range fields {
		file, header, err := r.FormFile(field)
		if err == nil {
			return file, header, nil
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, nil, badRequest(err)
		}
	}
	return nil, nil, badRequestCode(fmt.Errorf("no file selected (field %q)", fields[0]), ErrCodeMissingRequired)
}

func classifyPutError(err error) error {
	var writeErr *blobstore.WriteError
	switch {
	case errors.Is(err, blobstore.ErrExists):
		return conflictCode(fmt.Errorf("identifier already taken, retry the upload"), ErrCodeBlobExists)
	case errors.As(err, &writeErr):
		return storeFailure(err)
	case isBodyTooLarge(err):
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	default:
		return internalError(err)
	}
}
