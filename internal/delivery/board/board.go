package board

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/liverex/leela-zero-ui/internal/domain/game"
	errs "github.com/liverex/leela-zero-ui/internal/errors"
	"github.com/liverex/leela-zero-ui/internal/httpresponse"
)

// Controller takes moves clicked on the board.
type Controller interface {
	Place(ctx context.Context, color game.Color, pos int) error
}

// Hinter is implemented by controllers that can suggest a move.
type Hinter interface {
	Hint(ctx context.Context) (game.Move, error)
}

// RecordArchive lists stored games.
type RecordArchive interface {
	Recent(ctx context.Context, limit int64) ([]game.Record, error)
	CountByWinner(ctx context.Context, winner game.Winner) (int64, error)
}

// RecordLoader returns the SGF text of one stored game.
type RecordLoader interface {
	Load(ctx context.Context, id string) (string, error)
}

const (
	defaultRecordsLimit = 20
	maxRecordsLimit     = 100
)

type PlaceRequest struct {
	Color  string `json:"color"`
	Vertex string `json:"vertex"`
}

type MoveResponse struct {
	Move   game.Move `json:"move"`
	Vertex string    `json:"vertex"`
}

type BoardHandler struct {
	log        *zap.SugaredLogger
	hub        *Hub
	controller Controller
	boardSize  func() int
	metrics    http.Handler
	archive    RecordArchive
	loader     RecordLoader
}

func NewBoardHandler(log *zap.SugaredLogger, hub *Hub, controller Controller, boardSize func() int, metrics http.Handler) *BoardHandler {
	return &BoardHandler{
		log:        log,
		hub:        hub,
		controller: controller,
		boardSize:  boardSize,
		metrics:    metrics,
	}
}

// WithRecords enables the /records routes for whichever of archive and loader
// is not nil.
func (h *BoardHandler) WithRecords(archive RecordArchive, loader RecordLoader) *BoardHandler {
	h.archive = archive
	h.loader = loader
	return h
}

func (h *BoardHandler) Router(r chi.Router) {
	r.Use(middleware.Recoverer)

	r.Get("/ws", h.HandleWS)
	r.Get("/moves", h.HandleMoves)
	r.Post("/place", h.HandlePlace)
	r.Post("/hint", h.HandleHint)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}
	if h.archive != nil {
		r.Get("/records", h.HandleRecords)
		r.Get("/records/stats", h.HandleRecordStats)
	}
	if h.loader != nil {
		r.Get("/records/{id}/sgf", h.HandleRecordSGF)
	}
}

func (h *BoardHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleWS(w, r, func(event Event) {
		if event.Type != "place" || event.Move == nil {
			return
		}
		if err := h.place(r.Context(), event.Move.Color, event.Move.Pos); err != nil {
			h.log.Warnf("board place %v: %v", *event.Move, err)
		}
	})
}

func (h *BoardHandler) HandleMoves(w http.ResponseWriter, r *http.Request) {
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, h.hub.Moves())
}

func (h *BoardHandler) HandlePlace(w http.ResponseWriter, r *http.Request) {
	var req PlaceRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	color, ok := game.ParseColor(req.Color)
	if !ok {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, "unknown color "+req.Color)
		return
	}
	pos, err := game.TextToMove(req.Vertex, h.boardSize())
	if err != nil || pos < 0 {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, "invalid vertex "+req.Vertex)
		return
	}

	if err := h.place(r.Context(), color, pos); err != nil {
		h.writeError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, MoveResponse{
		Move:   game.Move{Color: color, Pos: pos},
		Vertex: game.MoveToText(pos, h.boardSize()),
	})
}

func (h *BoardHandler) place(ctx context.Context, color game.Color, pos int) error {
	if h.controller == nil {
		return errs.ErrNotReady
	}
	return h.controller.Place(ctx, color, pos)
}

func (h *BoardHandler) HandleHint(w http.ResponseWriter, r *http.Request) {
	hinter, ok := h.controller.(Hinter)
	if !ok {
		httpresponse.WriteResponseWithStatus(w, http.StatusNotImplemented, "hints are not available in this mode")
		return
	}
	move, err := hinter.Hint(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, MoveResponse{
		Move:   move,
		Vertex: game.MoveToText(move.Pos, h.boardSize()),
	})
}

func (h *BoardHandler) HandleRecords(w http.ResponseWriter, r *http.Request) {
	limit := int64(defaultRecordsLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 || n > maxRecordsLimit {
			httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxRecordsLimit))
			return
		}
		limit = n
	}

	records, err := h.archive.Recent(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if records == nil {
		records = []game.Record{}
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, records)
}

func (h *BoardHandler) HandleRecordStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[game.Winner]int64, 3)
	for _, winner := range []game.Winner{game.WinnerBlack, game.WinnerWhite, game.WinnerNone} {
		n, err := h.archive.CountByWinner(r.Context(), winner)
		if err != nil {
			h.writeError(w, err)
			return
		}
		stats[winner] = n
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, stats)
}

func (h *BoardHandler) HandleRecordSGF(w http.ResponseWriter, r *http.Request) {
	text, err := h.loader.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-go-sgf")
	_, _ = w.Write([]byte(text))
}

func (h *BoardHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrRecordNotFound):
		httpresponse.WriteResponseWithStatus(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrProtocolFailure):
		httpresponse.WriteResponseWithStatus(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, errs.ErrNotReady), errors.Is(err, errs.ErrProcessTerminated):
		httpresponse.WriteResponseWithStatus(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Errorf("board request failed: %v", err)
		httpresponse.WriteInternalErrorResponse(w)
	}
}
