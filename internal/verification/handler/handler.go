// Package handler exposes document upload and verification over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"evoto/internal/identity/session"
	"evoto/internal/verification/models"
	"evoto/internal/verification/service"
	dErrors "evoto/pkg/domain-errors"
	"evoto/pkg/platform/httputil"
	"evoto/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

const multipartMemory = 8 << 20

// Service is the verification session workflow.
type Service interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*models.Session, error)
	Reverify(ctx context.Context, sessionID, subject, claimedRUT string) (*models.Session, error)
}

type Handler struct {
	service        Service
	logger         *slog.Logger
	maxUploadBytes int64
}

func New(svc Service, logger *slog.Logger, maxUploadBytes int64) *Handler {
	return &Handler{service: svc, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Register mounts the routes; the caller applies the session middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verify", h.HandleVerify)
	r.Post("/verify/recheck", h.HandleRecheck)
}

// VerifyResponse reports the outcome of the latest document check.
type VerifyResponse struct {
	Success      bool   `json:"success"`
	Status       string `json:"status"`
	RUTMatch     bool   `json:"rut_match"`
	ExtractedRUT string `json:"extracted_rut"`
	UserRUT      string `json:"user_rut"`
	Message      string `json:"message"`
	Attempts     int    `json:"attempts"`
	Rotations    int    `json:"rotations"`
	// Stored image keys; the front one is the cropped card when cropping ran.
	FrontImageKey string `json:"image_front_key,omitempty"`
	BackImageKey  string `json:"image_back_key,omitempty"`
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, ok := session.FromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "login required"))
		return
	}

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		httputil.WriteError(w, uploadErr(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	front, err := readUpload(r, "file_front")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	back, err := readUpload(r, "file_back")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	vs, err := h.service.Submit(ctx, service.SubmitRequest{
		SessionID:  s.ID,
		Subject:    s.Claims.Subject,
		ClaimedRUT: s.Claims.RUT,
		Front:      front,
		Back:       back,
	})
	if err != nil {
		h.logFailure(ctx, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(vs, s.Claims.RUT))
}

// HandleRecheck re-runs the pipeline over the front image already uploaded in this session.
func (h *Handler) HandleRecheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, ok := session.FromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "login required"))
		return
	}
	vs, err := h.service.Reverify(ctx, s.ID, s.Claims.Subject, s.Claims.RUT)
	if err != nil {
		h.logFailure(ctx, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(vs, s.Claims.RUT))
}

func (h *Handler) logFailure(ctx context.Context, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "document verification failed",
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func toResponse(vs *models.Session, userRUT string) VerifyResponse {
	resp := VerifyResponse{UserRUT: userRUT, Attempts: vs.Attempts}
	if vs.Result == nil {
		return resp
	}
	res := vs.Result
	resp.Status = string(res.Status)
	resp.ExtractedRUT = res.DetectedRUT
	resp.RUTMatch = res.Matched()
	resp.Success = res.Found()
	resp.Rotations = res.Rotations
	resp.FrontImageKey = res.FrontImageKey
	if res.CroppedKey != "" {
		resp.FrontImageKey = res.CroppedKey
	}
	resp.BackImageKey = res.BackImageKey
	switch res.Status {
	case models.StatusMatched:
		resp.Message = "El RUT del documento coincide."
	case models.StatusMismatched:
		resp.Message = "El RUT del documento NO coincide."
	default:
		resp.Message = "No se pudo encontrar un RUT válido en la imagen. Intente con una foto mejor iluminada y enfocada."
	}
	return resp
}

func readUpload(r *http.Request, field string) (service.Upload, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return service.Upload{}, dErrors.New(dErrors.CodeBadRequest, field+" is required")
		}
		return service.Upload{}, uploadErr(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.Upload{}, uploadErr(err)
	}
	if len(data) == 0 {
		return service.Upload{}, dErrors.New(dErrors.CodeBadRequest, field+" is empty")
	}
	return service.Upload{Data: data, ContentType: http.DetectContentType(data)}, nil
}

func uploadErr(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return dErrors.Wrap(err, dErrors.CodePayloadTooLarge, "upload exceeds the size limit")
	}
	if errors.Is(err, multipart.ErrMessageTooLarge) {
		return dErrors.Wrap(err, dErrors.CodePayloadTooLarge, "upload exceeds the size limit")
	}
	return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed upload")
}
