// Package api serves the HTTP side of the server: health, room listing and
// the per-room simulation controls. The websocket endpoint is mounted here
// too so everything shares one router.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"fruitninja/game"
	"fruitninja/room"
)

const maxBody = 1 << 16

type Handler struct {
	rooms  *room.Manager
	engine *game.Engine
	log    *slog.Logger
}

type speedRequest struct {
	Multiplier float64 `json:"multiplier"`
}

type speedResponse struct {
	Affected int `json:"affected"`
}

type boostRequest struct {
	FruitName  string  `json:"fruitName"`
	Multiplier float64 `json:"multiplier"`
}

type boostResponse struct {
	BoostedCount int `json:"boostedCount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter builds the full HTTP handler. ws is served at /ws.
func NewRouter(rooms *room.Manager, engine *game.Engine, ws http.Handler, allowedOrigins []string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{rooms: rooms, engine: engine, log: logger.With(slog.String("component", "api"))}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/rooms", h.listRooms).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{code}/stats", h.stats).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{code}/speed", h.speed).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{code}/boost", h.boost).Methods(http.MethodPost)
	if ws != nil {
		r.Handle("/ws", ws).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	var out http.Handler = c.Handler(r)
	out = handlers.CustomLoggingHandler(io.Discard, out, h.logRequest)
	out = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{h.log}))(out)
	return out
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listRooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.rooms.ListRooms())
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if _, ok := h.rooms.Room(code); !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: room.ErrRoomNotFound.Error()})
		return
	}
	st, ok := h.engine.Stats(code)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "No game running"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) speed(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req speedRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := checkMultiplier(req.Multiplier); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if _, ok := h.rooms.Room(code); !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: room.ErrRoomNotFound.Error()})
		return
	}
	n := h.engine.SetGlobalSpeedMultiplier(code, req.Multiplier)
	h.log.Info("speed changed", slog.String("room", code), slog.Float64("multiplier", req.Multiplier), slog.Int("affected", n))
	writeJSON(w, http.StatusOK, speedResponse{Affected: n})
}

func (h *Handler) boost(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req boostRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.FruitName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "fruitName is required"})
		return
	}
	if err := checkMultiplier(req.Multiplier); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if _, ok := h.rooms.Room(code); !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: room.ErrRoomNotFound.Error()})
		return
	}
	n := h.engine.BoostFruitType(code, req.FruitName, req.Multiplier)
	h.log.Info("fruit type boosted",
		slog.String("room", code),
		slog.String("fruit", req.FruitName),
		slog.Float64("multiplier", req.Multiplier),
		slog.Int("boosted", n),
	)
	writeJSON(w, http.StatusOK, boostResponse{BoostedCount: n})
}

func (h *Handler) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	h.log.Debug("http request",
		slog.String("method", p.Request.Method),
		slog.String("path", p.URL.Path),
		slog.Int("status", p.StatusCode),
		slog.Int("size", p.Size),
		slog.Duration("took", time.Since(p.TimeStamp)),
	)
}

type recoveryLogger struct{ log *slog.Logger }

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("handler panicked", slog.String("panic", fmt.Sprint(v...)))
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}

func checkMultiplier(m float64) error {
	if m <= 0 || math.IsNaN(m) || math.IsInf(m, 0) {
		return fmt.Errorf("multiplier must be a positive number")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
