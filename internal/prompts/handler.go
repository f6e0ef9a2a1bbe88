package prompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/promptforge-app/promptforge/internal/api"
	"github.com/promptforge-app/promptforge/internal/auth"
	"github.com/promptforge-app/promptforge/internal/gemini"
	"github.com/promptforge-app/promptforge/internal/quota"
)

type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// Generate handles POST /api/v1/prompts/generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewValidationError("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("initialIdea is required and must be under 8000 characters"))
		return
	}

	text, err := h.service.Generate(r.Context(), userID, req)
	if err != nil {
		h.handleGenerationError(w, r, err)
		return
	}

	api.JSON(w, http.StatusOK, GenerateResponse{MagicalPrompt: text})
}

// Questions handles POST /api/v1/prompts/questions.
func (h *Handler) Questions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req QuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewValidationError("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("initialIdea is required and must be under 8000 characters"))
		return
	}

	questions, err := h.service.Questions(r.Context(), userID, req)
	if err != nil {
		h.handleGenerationError(w, r, err)
		return
	}

	api.JSON(w, http.StatusOK, QuestionsResponse{Questions: questions})
}

// QuotaStatus handles GET /api/v1/quota.
func (h *Handler) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	status, err := h.service.QuotaStatus(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to read quota status", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

// requireUser extracts the authenticated user from the request context. The
// auth middleware guarantees claims are present on protected routes; a
// missing or malformed ID here is rejected without touching the service.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthenticated)
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil || userID == uuid.Nil {
		api.HandleError(w, api.ErrUnauthenticated)
		return uuid.Nil, false
	}
	return userID, true
}

// handleGenerationError maps domain failures onto the API error contract.
// Quota verdicts and provider misconfiguration each get a distinct code so
// the client can render the right guidance.
func (h *Handler) handleGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		api.HandleError(w, api.NewResourceExhaustedError(fmt.Sprintf(
			"You have reached your daily limit of %d prompt generations. Please try again tomorrow.",
			exceeded.Limit,
		)))
		return
	}

	var storage *quota.StorageError
	if errors.As(err, &storage) {
		h.logger.Error("quota storage failure", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	switch {
	case errors.Is(err, gemini.ErrNotConfigured):
		h.logger.Error("gemini client not configured", "error", err)
		api.HandleError(w, api.NewFailedPreconditionError("The AI service is not configured correctly. Please contact support."))
	case errors.Is(err, gemini.ErrProviderQuota):
		api.HandleError(w, api.NewResourceExhaustedError("AI quota exceeded. Please try again later."))
	case errors.Is(err, gemini.ErrEmptyCompletion):
		h.logger.Error("model returned no usable output", "error", err)
		api.HandleError(w, api.ErrInternalServer)
	default:
		h.logger.Error("prompt generation failed", "path", r.URL.Path, "error", err)
		api.HandleError(w, api.ErrInternalServer)
	}
}
