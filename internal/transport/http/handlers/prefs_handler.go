package handlers

import (
	"errors"
	"net/http"

	prefssvc "github.com/ivankudzin/tipjar/internal/services/prefs"
	"github.com/ivankudzin/tipjar/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/tipjar/internal/transport/http/errors"
)

type PrefsHandler struct {
	prefs *prefssvc.Service
}

func NewPrefsHandler(prefs *prefssvc.Service) *PrefsHandler {
	return &PrefsHandler{prefs: prefs}
}

func (h *PrefsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.prefs == nil {
		writeInternal(w, "PREFS_SERVICE_UNAVAILABLE", "preferences service is unavailable")
		return
	}

	appearance, err := h.prefs.Get(r.Context())
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to load preferences")
		return
	}

	httperrors.Write(w, http.StatusOK, appearanceToDTO(appearance))
}

func (h *PrefsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h.prefs == nil {
		writeInternal(w, "PREFS_SERVICE_UNAVAILABLE", "preferences service is unavailable")
		return
	}

	var req dto.PrefsUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.AccentColor == nil && req.Icon == nil {
		writeBadRequest(w, "VALIDATION_ERROR", "nothing to update")
		return
	}

	var (
		appearance prefssvc.Appearance
		err        error
	)
	if req.AccentColor != nil {
		appearance, err = h.prefs.SetAccentColor(r.Context(), *req.AccentColor)
		if err != nil {
			handlePrefsError(w, err)
			return
		}
	}
	if req.Icon != nil {
		appearance, err = h.prefs.SetIcon(r.Context(), *req.Icon)
		if err != nil {
			handlePrefsError(w, err)
			return
		}
	}

	httperrors.Write(w, http.StatusOK, appearanceToDTO(appearance))
}

func handlePrefsError(w http.ResponseWriter, err error) {
	if errors.Is(err, prefssvc.ErrValidation) {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid preference value")
		return
	}
	writeInternal(w, "INTERNAL_ERROR", "failed to update preferences")
}

func appearanceToDTO(appearance prefssvc.Appearance) dto.PrefsResponse {
	return dto.PrefsResponse{
		AccentColor: appearance.AccentColor,
		Icon:        appearance.Icon,
	}
}
