package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/tops/internal/domain/types"
)

// ActivityDependencies defines the interface for activity ingestion.
type ActivityDependencies interface {
	Activity(ctx context.Context, a types.Activity) (types.ActivityResult, error)
}

// ActivityHandler handles join/quit requests.
type ActivityHandler struct {
	deps ActivityDependencies
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(deps ActivityDependencies) *ActivityHandler {
	return &ActivityHandler{deps: deps}
}

// activityRequest mirrors the body of POST /activity.
type activityRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Action string `json:"action"`
}

func (a activityRequest) validate() error {
	switch {
	case strings.TrimSpace(a.ID) == "":
		return errors.New("missing id")
	case a.Action != types.ActionJoin && a.Action != types.ActionQuit:
		return errors.New("action must be join or quit")
	}
	if _, err := uuid.Parse(a.ID); err != nil {
		return errors.New("invalid id; must be a UUID")
	}
	return nil
}

// HandlePostActivity handles POST /activity requests.
func (h *ActivityHandler) HandlePostActivity(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_activity"
	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Activity(r.Context(), types.Activity{
		ID:     req.ID,
		Name:   strings.TrimSpace(req.Name),
		Action: req.Action,
	})
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}
