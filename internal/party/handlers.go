package party

import (
	"net/http"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes customer and supplier endpoints.
type Handler struct {
	Svc *Service
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.CreateCustomer(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, c)
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := common.URLUUID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.GetCustomer(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, c)
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	rows, err := h.Svc.ListCustomers(r.Context(), r.URL.Query().Get("q"), page, perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}

func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	s, err := h.Svc.CreateSupplier(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, s)
}

func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := common.URLUUID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	s, err := h.Svc.GetSupplier(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, s)
}

func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	rows, err := h.Svc.ListSuppliers(r.Context(), r.URL.Query().Get("q"), page, perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}
