package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/avvvet/namecard-services/internal/cardsvc/catalog"
	"github.com/avvvet/namecard-services/internal/cardsvc/command"
	"github.com/avvvet/namecard-services/internal/cardsvc/models"
	"github.com/avvvet/namecard-services/internal/cardsvc/worker"
	"github.com/go-chi/jwtauth"
)

type Handler struct {
	tokenAuth *jwtauth.JWTAuth
	port      string

	catalog *catalog.Catalog
	command *command.Command
	loop    worker.Poster
}

func NewHandler(port string, c *catalog.Catalog, cmd *command.Command, loop worker.Poster) *Handler {
	return &Handler{
		port:    port,
		catalog: c,
		command: cmd,
		loop:    loop,
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

type CommandRequest struct {
	Args []string `json:"args"`
}

type CardList struct {
	DefaultID string        `json:"default_id,omitempty"`
	Cards     []models.Card `json:"cards"`
}

func (rs *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	json.NewEncoder(w).Encode(rsp)
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "card service is running at port " + h.port,
		Code:    http.StatusOK,
	})
}

// CardsHandler lists the catalog in layer order.
func (h *Handler) CardsHandler(w http.ResponseWriter, r *http.Request) {
	snap := h.catalog.Snapshot()
	list := CardList{Cards: snap.SortedByLayer()}
	list.DefaultID, _ = snap.DefaultID()

	h.CreateResponse(w, Response{
		Message: "ok",
		Code:    http.StatusOK,
		Data:    list,
	})
}

// CommandHandler runs /namecard as the console and returns what it printed.
func (h *Handler) CommandHandler(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{
			Message: "invalid request body",
			Code:    http.StatusBadRequest,
			Error:   err.Error(),
		})
		return
	}

	console := command.NewConsoleSender()
	started := make(chan *worker.Future[struct{}], 1)
	if !h.loop.Post(func() { started <- h.command.Run(console, req.Args) }) {
		h.CreateResponse(w, Response{
			Message: "card service is shutting down",
			Code:    http.StatusServiceUnavailable,
		})
		return
	}

	var err error
	select {
	case done := <-started:
		_, err = done.Await(r.Context())
	case <-r.Context().Done():
		err = r.Context().Err()
	}
	if err != nil {
		h.CreateResponse(w, Response{
			Message: "command did not finish",
			Code:    http.StatusGatewayTimeout,
			Data:    console.Messages(),
			Error:   err.Error(),
		})
		return
	}

	h.CreateResponse(w, Response{
		Message: "ok",
		Code:    http.StatusOK,
		Data:    console.Messages(),
	})
}
