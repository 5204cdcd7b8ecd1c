package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/okian/tops/internal/domain/types"
)

// PositionDependencies defines the interface for position lookups.
type PositionDependencies interface {
	Position(ctx context.Context, id string, identifier uuid.UUID) (types.Position, error)
	EntryAt(ctx context.Context, id string, pos int) (types.Entry, error)
}

// PositionHandler handles position requests.
type PositionHandler struct {
	deps PositionDependencies
}

// NewPositionHandler creates a new position handler.
func NewPositionHandler(deps PositionDependencies) *PositionHandler {
	return &PositionHandler{deps: deps}
}

// HandleGetPosition handles GET /tops/{id}/position/{identifier}. An
// identifier outside the board answers 200 with position -1.
func (h *PositionHandler) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_position"
	identifier, err := uuid.Parse(r.PathValue("identifier"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	pos, err := h.deps.Position(r.Context(), r.PathValue("id"), identifier)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// HandleGetEntry handles GET /tops/{id}/entry/{pos} with 1-based positions.
func (h *PositionHandler) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_entry"
	pos, err := strconv.Atoi(r.PathValue("pos"))
	if err != nil || pos < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	entry, err := h.deps.EntryAt(r.Context(), r.PathValue("id"), pos)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
