package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"ChainFM/core/upload"
	"ChainFM/logger"
	"ChainFM/model"
)

const maxUploadMemory = 32 << 20 // 32MB in memory, rest spills to disk

var nonAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)

// UploadMediaHandler accepts a multipart media upload, stores the file in
// the scratch directory and starts the background pipeline. The response
// carries the job id; segmentation and entity-store upload happen after
// the response is sent.
//
// Expected form fields: mediaFile, title, artist (optional), description
// (optional), category (optional), type, priceEth, coverFile (optional).
func (h *APIHandler) UploadMediaHandler(w http.ResponseWriter, r *http.Request) {
	wallet, err := WalletFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse multipart form: %v", err))
		return
	}

	mediaFile, mediaHeader, err := r.FormFile("mediaFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'mediaFile' in form")
		return
	}
	defer mediaFile.Close()

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	priceETH := strings.TrimSpace(r.FormValue("priceEth"))
	if priceETH == "" {
		writeError(w, http.StatusBadRequest, "priceEth is required")
		return
	}
	itemType := strings.TrimSpace(r.FormValue("type"))
	if itemType == "" {
		itemType = "music"
	}

	draft := upload.ItemDraft{
		Type:        itemType,
		Title:       title,
		Artist:      strings.TrimSpace(r.FormValue("artist")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Category:    strings.TrimSpace(r.FormValue("category")),
		PriceETH:    priceETH,
	}

	if coverFile, coverHeader, err := r.FormFile("coverFile"); err == nil {
		defer coverFile.Close()
		coverURL, err := h.storeCover(r, coverFile, coverHeader.Filename, coverHeader.Size)
		if err != nil {
			logger.Warn("Cover upload failed, continuing without cover",
				logger.String("wallet", wallet),
				logger.ErrorField(err))
		} else {
			draft.CoverURL = coverURL
		}
	}

	inputPath, err := h.saveScratchFile(mediaFile, mediaHeader.Filename)
	if err != nil {
		logger.Error("Failed to store uploaded media",
			logger.String("wallet", wallet),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to store uploaded file")
		return
	}

	job, err := h.pipeline.Start(wallet, inputPath, mediaHeader.Filename, mediaHeader.Size, draft)
	if err != nil {
		os.Remove(inputPath)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// GetUploadJobHandler returns one job's status for polling clients.
func (h *APIHandler) GetUploadJobHandler(w http.ResponseWriter, r *http.Request) {
	wallet, err := WalletFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	job, err := h.jobs.Get(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if job == nil || !strings.EqualFold(job.WalletAddress, wallet) {
		writeError(w, http.StatusNotFound, "upload job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListUploadJobsHandler returns the wallet's jobs, newest first.
func (h *APIHandler) ListUploadJobsHandler(w http.ResponseWriter, r *http.Request) {
	wallet, err := WalletFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	jobs, err := h.jobs.ListByWallet(wallet)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*model.UploadJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// saveScratchFile writes the uploaded media into the scratch directory
// under a collision-free name.
func (h *APIHandler) saveScratchFile(src io.Reader, originalName string) (string, error) {
	safeName := nonAlphaNumeric.ReplaceAllString(filepath.Base(originalName), "_")
	path := filepath.Join(h.cfg.UploadDir, uuid.NewString()+"_"+safeName)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (h *APIHandler) storeCover(r *http.Request, src io.Reader, originalName string, size int64) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	contentType := "image/jpeg"
	if ext == ".png" {
		contentType = "image/png"
	}
	key := "covers/" + uuid.NewString() + ext
	return h.covers.Put(r.Context(), key, src, size, contentType)
}
