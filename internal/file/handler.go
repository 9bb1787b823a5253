package file

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/radif/uploader/internal/response"
)

const uploadField = "file"

// multipartSlack is the room allowed on top of the payload limit for the
// boundaries and part headers of the multipart envelope.
const multipartSlack = 64 << 10

// Handler holds HTTP handlers for file endpoints.
type Handler struct {
	svc            *Service
	publicURL      string
	maxUploadBytes int64
}

// NewHandler creates a new file Handler. publicURL is the base used to build
// the URLs returned after an upload.
func NewHandler(svc *Service, publicURL string, maxUploadBytes int64) *Handler {
	return &Handler{
		svc:            svc,
		publicURL:      strings.TrimRight(publicURL, "/"),
		maxUploadBytes: maxUploadBytes,
	}
}

type uploadData struct {
	URL         string `json:"url"         example:"http://localhost:8080/aB3dE9xQ"`
	DeletionURL string `json:"deletionUrl" example:"http://localhost:8080/api/v1/file/delete/6f1c0c3e5b8e4d0e9d3a2b1c0f9e8d7c"`
}

// Upload godoc
//
//	@Summary		Upload a file
//	@Description	Stores the file and returns its public URL and a secret deletion URL. When an upload key is configured the Authorization header must equal it.
//	@Tags			files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file			formData	file	true	"File to upload"
//	@Param			Authorization	header		string	false	"Upload key"
//	@Success		200				{object}	response.Envelope{data=uploadData}
//	@Failure		400				{object}	response.Envelope
//	@Failure		401				{object}	response.Envelope
//	@Failure		413				{object}	response.Envelope
//	@Failure		500				{object}	response.Envelope
//	@Failure		502				{object}	response.Envelope
//	@Router			/api/v1/file/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Upload(r.Context(), data, contentType)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, uploadData{
		URL:         h.publicURL + "/" + res.PublicID,
		DeletionURL: h.publicURL + "/api/v1/file/delete/" + res.Secret,
	})
}

// Show godoc
//
//	@Summary		Download a file
//	@Description	Returns the raw file with its stored content type.
//	@Tags			files
//	@Produce		octet-stream
//	@Param			id	path		string	true	"Public file id"
//	@Success		200	{file}		binary
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/{id} [get]
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	blob, err := h.svc.Retrieve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Cache-Control", cacheControl(blob.CacheMaxAge))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}

// Delete godoc
//
//	@Summary		Delete a file
//	@Description	Deletes the file owning the secret. Also served over GET for upload tools that only issue GET requests.
//	@Tags			files
//	@Produce		json
//	@Param			secret	path		string	true	"Deletion secret"
//	@Success		200		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Failure		502		{object}	response.Envelope
//	@Router			/api/v1/file/delete/{secret} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "secret")); err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, nil)
}

// readUpload extracts the uploaded part and its content type.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	if h.maxUploadBytes > 0 {
		bodyLimit := h.maxUploadBytes + multipartSlack
		if r.ContentLength > bodyLimit {
			return nil, "", ErrTooLarge
		}
		r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	}

	part, header, err := r.FormFile(uploadField)
	if err != nil {
		return nil, "", uploadReadError(err)
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		return nil, "", uploadReadError(err)
	}
	if h.maxUploadBytes > 0 && int64(len(data)) > h.maxUploadBytes {
		return nil, "", fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, h.maxUploadBytes)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

func uploadReadError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxErr.Limit)
	}
	return fmt.Errorf("%w: %w", ErrConversion, err)
}

func cacheControl(maxAge int) string {
	if maxAge > 0 {
		return "max-age=" + strconv.Itoa(maxAge)
	}
	return "no-cache"
}
