package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	apierrors "github.com/l3viathan/apy4i/internal/errors"
	"github.com/l3viathan/apy4i/internal/jsonldb"
	"github.com/l3viathan/apy4i/internal/utils"
)

// BlobHandler uploads and downloads blobs.
type BlobHandler struct {
	db      *jsonldb.DB
	maxSize int64
}

// NewBlobHandler creates a blob handler accepting bodies up to maxSize bytes.
func NewBlobHandler(db *jsonldb.DB, maxSize int64) *BlobHandler {
	return &BlobHandler{db: db, maxSize: maxSize}
}

// Upload stores the request body as a blob.
//
// text/* bodies are stored as text, application/json as an object and
// anything else as raw bytes.
func (h *BlobHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxSize))
	if err != nil {
		utils.RespondError(w, apierrors.NewAPIError(http.StatusRequestEntityTooLarge, apierrors.ErrValidationFailed, "Failed to read request body").Wrap(err))
		return
	}
	p, err := payloadFor(r.Header.Get("Content-Type"), body)
	if err != nil {
		utils.RespondError(w, apierrors.BadRequest(err.Error()))
		return
	}
	id, err := h.db.WriteBlob(ctx, p)
	if err != nil {
		respondStorageError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]string{"id": id, "mode": string(p.Mode())})
}

// Download returns a blob. The optional "mode" query parameter bypasses the
// index lookup.
func (h *BlobHandler) Download(w http.ResponseWriter, r *http.Request) {
	mode := jsonldb.Mode(r.URL.Query().Get("mode"))
	if mode != "" {
		if err := mode.Validate(); err != nil {
			utils.RespondError(w, apierrors.BadRequest(err.Error()).WithDetail("mode", string(mode)))
			return
		}
	}
	p, err := h.db.ReadBlob(r.Context(), r.PathValue("id"), mode)
	if err != nil {
		respondStorageError(w, r, err)
		return
	}
	switch p.Mode() {
	case jsonldb.ModeString:
		s, _ := p.Text()
		utils.RespondRaw(w, http.StatusOK, "text/plain; charset=utf-8", []byte(s))
	case jsonldb.ModeBytes:
		b, _ := p.Bytes()
		utils.RespondRaw(w, http.StatusOK, "application/octet-stream", b)
	case jsonldb.ModeObject:
		v, err := p.Object()
		if err != nil {
			respondStorageError(w, r, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, v)
	}
}

func payloadFor(contentType string, body []byte) (jsonldb.Payload, error) {
	mt, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mt == "application/json":
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return jsonldb.Payload{}, errors.New("body is not valid JSON")
		}
		return jsonldb.ObjectPayload(v)
	case strings.HasPrefix(mt, "text/"):
		return jsonldb.TextPayload(string(body)), nil
	default:
		return jsonldb.BytesPayload(body), nil
	}
}

func respondStorageError(w http.ResponseWriter, r *http.Request, err error) {
	e := apierrors.FromStorage(err)
	if e.StatusCode() >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Blob storage error", "err", err)
	}
	utils.RespondError(w, e)
}
