package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/salonchat/supportdesk/pkg/logging"
)

// Handler exposes catalog documents to staff and, read-only, to the widget.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a catalog HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes returns the staff catalog routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)

	r.Get("/branches", h.ListBranches)
	r.Post("/branches", h.CreateBranch)
	r.Get("/branches/{branchID}", h.GetBranch)
	r.Put("/branches/{branchID}", h.UpdateBranch)
	r.Delete("/branches/{branchID}", h.DeleteBranch)

	r.Get("/products", h.ListProducts)
	r.Post("/products", h.CreateProduct)
	r.Get("/products/{productID}", h.GetProduct)
	r.Put("/products/{productID}", h.UpdateProduct)
	r.Delete("/products/{productID}", h.DeleteProduct)
	return r
}

// PublicRoutes lists active branches and products for the chat widget.
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/branches", h.listActiveBranches)
	r.Get("/products", h.listActiveProducts)
	return r
}

// GetSettings returns the venue settings.
// GET /api/staff/catalog/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetSettings(r.Context())
	if err != nil {
		h.fail(w, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings applies the fields present in the body to the stored
// settings. Fields sent as null are cleared.
// PUT /api/staff/catalog/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetSettings(r.Context())
	if err != nil {
		h.fail(w, "get settings", err)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.store.SaveSettings(r.Context(), settings); err != nil {
		h.fail(w, "save settings", err)
		return
	}
	h.logger.Info("venue settings updated", "venue", settings.VenueName)
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.store.ListBranches(r.Context())
	if err != nil {
		h.fail(w, "list branches", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches, "count": len(branches)})
}

func (h *Handler) listActiveBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.store.ListBranches(r.Context())
	if err != nil {
		h.fail(w, "list branches", err)
		return
	}
	active := make([]Branch, 0, len(branches))
	for _, b := range branches {
		if b.IsActive {
			active = append(active, b)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": active})
}

func (h *Handler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var b Branch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	b.ID = ""
	if err := h.store.SaveBranch(r.Context(), &b); err != nil {
		h.fail(w, "create branch", err)
		return
	}
	h.logger.Info("branch created", "branch_id", b.ID, "name", b.Name)
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) GetBranch(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.GetBranch(r.Context(), chi.URLParam(r, "branchID"))
	if err != nil {
		h.fail(w, "get branch", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) UpdateBranch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "branchID")
	b, err := h.store.GetBranch(r.Context(), id)
	if err != nil {
		h.fail(w, "get branch", err)
		return
	}
	createdAt := b.CreatedAt
	if err := json.NewDecoder(r.Body).Decode(b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	b.ID, b.CreatedAt = id, createdAt
	if err := h.store.SaveBranch(r.Context(), b); err != nil {
		h.fail(w, "update branch", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) DeleteBranch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "branchID")
	if err := h.store.DeleteBranch(r.Context(), id); err != nil {
		h.fail(w, "delete branch", err)
		return
	}
	h.logger.Info("branch deleted", "branch_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products, "count": len(products)})
}

func (h *Handler) listActiveProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	active := make([]Product, 0, len(products))
	for _, p := range products {
		if p.IsActive {
			active = append(active, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": active})
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var p Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p.ID = ""
	if err := h.store.SaveProduct(r.Context(), &p); err != nil {
		h.fail(w, "create product", err)
		return
	}
	h.logger.Info("product created", "product_id", p.ID, "name", p.Name)
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.fail(w, "get product", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	p, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, "get product", err)
		return
	}
	createdAt := p.CreatedAt
	if err := json.NewDecoder(r.Body).Decode(p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p.ID, p.CreatedAt = id, createdAt
	if err := h.store.SaveProduct(r.Context(), p); err != nil {
		h.fail(w, "update product", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	if err := h.store.DeleteProduct(r.Context(), id); err != nil {
		h.fail(w, "delete product", err)
		return
	}
	h.logger.Info("product deleted", "product_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("catalog handler: "+op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
