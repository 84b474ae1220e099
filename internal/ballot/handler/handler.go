// Package handler exposes the unit listing and vote commit endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"evoto/internal/ballot/models"
	"evoto/internal/identity/session"
	vmodels "evoto/internal/verification/models"
	dErrors "evoto/pkg/domain-errors"
	"evoto/pkg/platform/httputil"
	"evoto/pkg/platform/middleware/device"
	"evoto/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Ledger,Verification

// Ledger is the ballot ledger.
type Ledger interface {
	PendingUnits(ctx context.Context, subject string, units []models.Unit) (pending, voted []models.Unit, err error)
	Cast(ctx context.Context, req models.CastRequest) (models.CastResult, error)
}

// Verification gates voting on a completed document check.
type Verification interface {
	RequireVerified(ctx context.Context, sessionID, subject string) (*vmodels.Session, error)
	Discard(ctx context.Context, sessionID string) error
}

type Handler struct {
	ledger       Ledger
	verification Verification
	logger       *slog.Logger
}

func New(ledger Ledger, verification Verification, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, verification: verification, logger: logger}
}

// Register mounts the routes; the caller applies the session middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/units", h.HandleUnits)
	r.Post("/vote", h.HandleVote)
}

// UnitsResponse lists the caller's units split by vote status.
type UnitsResponse struct {
	Name      string        `json:"name"`
	Community string        `json:"community"`
	Pending   []models.Unit `json:"pending"`
	Voted     []models.Unit `json:"voted"`
}

// VoteRequest is the body of POST /vote. final_answer is accepted for older clients.
type VoteRequest struct {
	Decision    string `json:"decision"`
	FinalAnswer string `json:"final_answer"`
}

func (r VoteRequest) decision() string {
	if strings.TrimSpace(r.Decision) != "" {
		return r.Decision
	}
	return r.FinalAnswer
}

// VoteResponse is returned for both fresh and repeated votes.
type VoteResponse struct {
	Success      bool          `json:"success"`
	AlreadyVoted bool          `json:"already_voted"`
	Message      string        `json:"message"`
	Units        []models.Unit `json:"units,omitempty"`
}

func (h *Handler) HandleUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, ok := session.FromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "login required"))
		return
	}
	units, err := h.units(ctx, s)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pending, voted, err := h.ledger.PendingUnits(ctx, s.Claims.Subject, units)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list units",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, UnitsResponse{
		Name:      s.Claims.Name,
		Community: s.Claims.Community,
		Pending:   emptyIfNil(pending),
		Voted:     emptyIfNil(voted),
	})
}

// HandleVote commits the decision for every unit the caller has not voted for yet.
func (h *Handler) HandleVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	s, ok := session.FromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "login required"))
		return
	}

	var body VoteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<10)).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	units, err := h.units(ctx, s)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	vs, err := h.verification.RequireVerified(ctx, s.ID, s.Claims.Subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.ledger.Cast(ctx, models.CastRequest{
		Voter:        s.Claims.Voter(s.LoginAt),
		Units:        units,
		Decision:     body.decision(),
		Verification: snapshot(vs),
		Client:       clientMetadata(ctx),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "vote commit failed",
			"error", err,
			"subject", s.Claims.Subject,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	if err := h.verification.Discard(ctx, s.ID); err != nil {
		h.logger.WarnContext(ctx, "failed to discard verification session",
			"error", err,
			"request_id", requestID,
		)
	}

	if result.Outcome == models.OutcomeAlreadyVoted {
		httputil.WriteJSON(w, http.StatusOK, VoteResponse{
			Success:      true,
			AlreadyVoted: true,
			Message:      "Tu participación ya estaba registrada.",
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VoteResponse{
		Success: true,
		Message: "Participación guardada.",
		Units:   result.Units,
	})
}

func (h *Handler) units(ctx context.Context, s *session.Session) ([]models.Unit, error) {
	units, err := s.Claims.Units()
	if errors.Is(err, models.ErrClaimsInconsistent) {
		h.logger.WarnContext(ctx, "inconsistent unit claims",
			"subject", s.Claims.Subject,
			"units", s.Claims.UnitList,
			"unit_types", s.Claims.UnitTypeList,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeClaimsInconsistent,
			"your unit data is inconsistent, please contact the administrator")
	}
	return units, err
}

func snapshot(vs *vmodels.Session) models.Verification {
	v := models.Verification{
		Attempts:      vs.Attempts,
		DetectionTime: vs.DetectionTime,
	}
	if res := vs.Result; res != nil {
		v.Status = string(res.Status)
		v.Match = res.Matched()
		v.DetectedRUT = res.DetectedRUT
		v.FrontImageKey = res.FrontImageKey
		v.BackImageKey = res.BackImageKey
		v.CroppedKey = res.CroppedKey
		v.Rotations = res.Rotations
	}
	return v
}

func clientMetadata(ctx context.Context) models.ClientMetadata {
	info := device.FromContext(ctx)
	return models.ClientMetadata{
		IP:        requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		Browser:   info.Browser,
		OS:        info.OS,
		RequestID: requestcontext.RequestID(ctx),
	}
}

func emptyIfNil(units []models.Unit) []models.Unit {
	if units == nil {
		return []models.Unit{}
	}
	return units
}
