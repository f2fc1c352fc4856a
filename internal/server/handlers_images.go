package server

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"nestling/internal/logging"
)

// handleUploadImage accepts a multipart upload (field "image") or a raw body,
// stores a downscaled JPEG, and returns its public URL. Uploads are
// content-addressed so re-sending the same photo is a no-op.
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Images.MaxUploadBytes)

	var src io.Reader = r.Body
	if err := r.ParseMultipartForm(s.cfg.Images.MaxUploadBytes); err == nil {
		file, _, ferr := r.FormFile("image")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, "multipart form missing image field")
			return
		}
		defer file.Close()
		src = file
	}

	url, err := s.images.Save(src)
	if err != nil {
		logging.Images("Upload rejected: %v", err)
		writeError(w, http.StatusBadRequest, "could not process image: "+err.Error())
		return
	}

	s.logger.Info("image stored", zap.String("url", url))
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}
