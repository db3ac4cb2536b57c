package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/saransh1220/tableside-sync/internal/modules/order/application"
	"github.com/saransh1220/tableside-sync/internal/modules/order/domain"
	"github.com/saransh1220/tableside-sync/internal/shared/httpapi"
	"github.com/saransh1220/tableside-sync/internal/shared/pagination"
	"github.com/saransh1220/tableside-sync/internal/shared/utils"
)

var filterKeys = []string{"keyword", "status", "from", "to"}

type OrderHandler struct {
	board *application.Board
}

func NewOrderHandler(board *application.Board) *OrderHandler {
	return &OrderHandler{board: board}
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.board.Snapshot())
}

// GoToPage moves to page {page}. When the query carries any filter key the
// filter is replaced first, which reloads from the first page.
func (h *OrderHandler) GoToPage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("page"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid page index", err)
		return
	}

	filter, present, err := parseFilter(r.URL.Query())
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid filter", err)
		return
	}

	if present && !sameFilter(filter, h.board.Filter()) {
		if err := h.board.SetFilter(r.Context(), filter); err != nil {
			writeBoardError(w, "failed to apply filter", err)
			return
		}
		if index == 0 {
			utils.WriteJSON(w, http.StatusOK, h.board.Snapshot())
			return
		}
	}

	if err := h.board.GoTo(r.Context(), index); err != nil {
		writeBoardError(w, "failed to change page", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, h.board.Snapshot())
}

func (h *OrderHandler) JumpToPage(w http.ResponseWriter, r *http.Request) {
	if err := h.board.Jump(r.Context(), r.URL.Query().Get("page")); err != nil {
		writeBoardError(w, "failed to jump to page", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, h.board.Snapshot())
}

func (h *OrderHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.board.Refresh(r.Context()); err != nil {
		writeBoardError(w, "failed to refresh orders", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, h.board.Snapshot())
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid order id", err)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil || status == "" {
		utils.WriteError(w, http.StatusBadRequest, "invalid order status", err)
		return
	}

	order, err := h.board.UpdateStatus(r.Context(), id, status)
	if err != nil {
		writeBoardError(w, "failed to update order status", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid order id", err)
		return
	}

	created, err := h.board.Reorder(r.Context(), id)
	if err != nil {
		writeBoardError(w, "failed to reorder", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, created)
}

func parseFilter(q url.Values) (domain.Filter, bool, error) {
	present := false
	for _, key := range filterKeys {
		if q.Has(key) {
			present = true
			break
		}
	}
	if !present {
		return domain.Filter{}, false, nil
	}

	status, err := domain.ParseStatus(q.Get("status"))
	if err != nil {
		return domain.Filter{}, true, err
	}
	from, err := pagination.ParseDate(q.Get("from"))
	if err != nil {
		return domain.Filter{}, true, fmt.Errorf("from: %w", err)
	}
	to, err := pagination.ParseDate(q.Get("to"))
	if err != nil {
		return domain.Filter{}, true, fmt.Errorf("to: %w", err)
	}

	return domain.Filter{Keyword: q.Get("keyword"), Status: status, From: from, To: to}, true, nil
}

func sameFilter(a, b domain.Filter) bool {
	return a.Keyword == b.Keyword && a.Status == b.Status && a.From.Equal(b.From) && a.To.Equal(b.To)
}

func writeBoardError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, pagination.ErrBusy):
		utils.WriteError(w, http.StatusConflict, msg, err)
	case errors.Is(err, pagination.ErrPageOutOfRange),
		errors.Is(err, pagination.ErrJumpNotNumeric),
		errors.Is(err, pagination.ErrJumpOutOfRange),
		errors.Is(err, pagination.ErrInvalidPage),
		errors.Is(err, pagination.ErrInvalidRange),
		errors.Is(err, domain.ErrInvalidOrderID),
		errors.Is(err, domain.ErrInvalidOrderStatus):
		utils.WriteError(w, http.StatusBadRequest, msg, err)
	case errors.Is(err, domain.ErrOrderNotFound):
		utils.WriteError(w, http.StatusNotFound, "order not found", err)
	case errors.Is(err, domain.ErrBoardClosed):
		utils.WriteError(w, http.StatusServiceUnavailable, msg, err)
	default:
		var apiErr *httpapi.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			utils.WriteError(w, http.StatusConflict, msg, err)
			return
		}
		log.Printf("[OrderHandler] %s: %v", msg, err)
		utils.WriteError(w, http.StatusBadGateway, msg, err)
	}
}
