package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/tops/internal/domain/types"
)

// BoardDependencies defines the interface for board reads.
type BoardDependencies interface {
	Boards(ctx context.Context) []types.Board
	Board(ctx context.Context, id string) (types.Board, error)
	Top(ctx context.Context, id string, limit int) ([]types.Entry, error)
}

// BoardHandler handles board requests.
type BoardHandler struct {
	deps     BoardDependencies
	maxLimit int
}

// NewBoardHandler creates a new board handler.
func NewBoardHandler(deps BoardDependencies, maxLimit int) *BoardHandler {
	return &BoardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleListBoards handles GET /tops requests.
func (h *BoardHandler) HandleListBoards(w http.ResponseWriter, r *http.Request) {
	boards := h.deps.Boards(r.Context())
	if boards == nil {
		boards = []types.Board{}
	}
	writeJSON(w, http.StatusOK, boards)
}

// HandleGetBoard handles GET /tops/{id}?limit=N requests. Without a limit
// the whole board is returned.
func (h *BoardHandler) HandleGetBoard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_top"
	id := r.PathValue("id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}

	board, err := h.deps.Board(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if limit == 0 {
		limit = board.Size
	}
	entries, err := h.deps.Top(r.Context(), id, limit)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if entries == nil {
		entries = []types.Entry{}
	}
	writeJSON(w, http.StatusOK, topResponse{Board: board, Entries: entries})
}
