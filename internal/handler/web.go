package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"maxxpharm/internal/domain"
	"maxxpharm/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxUploadSize = 10 << 20
	adminTokenKey = "X-Admin-Token"
)

// Routes builds the HTTP API served next to the bot
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/photo/", http.StripPrefix("/photo/", http.FileServer(http.Dir(h.cfg.PhotoDir))))
	mux.Handle("/metrics", h.metrics.Handler())

	mux.HandleFunc("/health", h.handleHealth)

	mux.HandleFunc("/api/products", h.handleGetProducts)
	mux.HandleFunc("/api/product/", h.handleGetProduct)
	mux.HandleFunc("/api/categories", h.handleGetCategories)
	mux.HandleFunc("/api/add-product", h.requireAdminToken(h.handleAddProduct))
	mux.HandleFunc("/api/update-product/", h.requireAdminToken(h.handleUpdateProduct))
	mux.HandleFunc("/api/delete-product/", h.requireAdminToken(h.handleDeleteProduct))
	mux.HandleFunc("/api/orders/stats", h.requireAdminToken(h.handleOrderStats))

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, "+adminTokenKey)
}

// StartWebServer serves Routes until ctx is cancelled
func (h *Handler) StartWebServer(ctx context.Context) error {
	if err := os.MkdirAll(h.cfg.PhotoDir, 0o755); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              h.cfg.Port,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			h.logger.Warn("Web server shutdown failed", zap.Error(err))
		}
	}()

	h.logger.Info("Starting web server", zap.String("port", h.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) requireAdminToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.AdminAPIToken == "" || r.Header.Get(adminTokenKey) != h.cfg.AdminAPIToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// pathID reads the trailing numeric id of /api/<resource>/<id>
func pathID(r *http.Request, prefix string) (int64, bool) {
	return parseID(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok", "redis": "ok"}
	status := http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.redisRepo.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	health := "healthy"
	if status != http.StatusOK {
		health = "unhealthy"
	}
	writeJSON(w, status, map[string]any{
		"status":    health,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "maxxpharm-bot",
	})
}

func (h *Handler) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	var (
		categoryID         int64
		minPrice, maxPrice decimal.Decimal
		err                error
	)
	if raw := q.Get("category"); raw != "" {
		if categoryID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "invalid category")
			return
		}
	}
	if raw := q.Get("min_price"); raw != "" {
		if minPrice, err = decimal.NewFromString(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_price")
			return
		}
	}
	if raw := q.Get("max_price"); raw != "" {
		if maxPrice, err = decimal.NewFromString(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid max_price")
			return
		}
	}

	products, err := h.products.AdvancedSearch(r.Context(), q.Get("q"), categoryID, minPrice, maxPrice)
	if err != nil {
		h.logger.Error("Error listing products", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "error listing products")
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := pathID(r, "/api/product/")
	if !ok {
		writeError(w, http.StatusBadRequest, "product id required")
		return
	}

	p, err := h.products.Get(r.Context(), id)
	if errors.Is(err, service.ErrProductNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("Error getting product", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "error getting product")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleGetCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	categories, err := h.categories.List(r.Context())
	if err != nil {
		h.logger.Error("Error listing categories", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "error listing categories")
		return
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}

// savePhoto stores the optional "photo" upload under a random name
func (h *Handler) savePhoto(r *http.Request) (string, error) {
	file, header, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	filename := uuid.New().String() + strings.ToLower(filepath.Ext(header.Filename))
	dst, err := os.Create(filepath.Join(h.cfg.PhotoDir, filename))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		h.removePhoto(filename)
		return "", err
	}
	return filename, nil
}

// removePhoto drops an upload whose product was never stored
func (h *Handler) removePhoto(filename string) {
	if filename == "" {
		return
	}
	if err := os.Remove(filepath.Join(h.cfg.PhotoDir, filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.logger.Warn("Failed to remove orphaned photo", zap.String("photo", filename), zap.Error(err))
	}
}

// productForm reads the multipart fields present in the request
func productForm(r *http.Request) (domain.ProductUpdate, error) {
	var u domain.ProductUpdate
	if v, ok := r.MultipartForm.Value["name"]; ok && len(v) > 0 {
		u.Name = &v[0]
	}
	if v, ok := r.MultipartForm.Value["description"]; ok && len(v) > 0 {
		u.Description = &v[0]
	}
	if v, ok := r.MultipartForm.Value["price"]; ok && len(v) > 0 {
		price, err := service.ParsePrice(v[0])
		if err != nil {
			return u, err
		}
		u.Price = &price
	}
	if v, ok := r.MultipartForm.Value["stock_quantity"]; ok && len(v) > 0 {
		stock, err := strconv.Atoi(strings.TrimSpace(v[0]))
		if err != nil {
			return u, errors.New("invalid stock_quantity")
		}
		u.StockQuantity = &stock
	}
	if v, ok := r.MultipartForm.Value["category_id"]; ok && len(v) > 0 {
		categoryID, err := strconv.ParseInt(strings.TrimSpace(v[0]), 10, 64)
		if err != nil {
			return u, errors.New("invalid category_id")
		}
		u.CategoryID = &categoryID
	}
	return u, nil
}

func (h *Handler) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "error parsing form")
		return
	}

	form, err := productForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if form.Name == nil || form.Price == nil || form.CategoryID == nil {
		writeError(w, http.StatusBadRequest, "name, price and category_id are required")
		return
	}

	var p domain.Product
	form.Apply(&p)

	photo, err := h.savePhoto(r)
	if err != nil {
		h.logger.Error("Error uploading photo", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "error uploading photo")
		return
	}
	p.ImagePath = photo

	if err := h.products.Create(r.Context(), 0, &p); err != nil {
		h.removePhoto(photo)
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "product created",
		"id":      p.ID,
	})
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := pathID(r, "/api/update-product/")
	if !ok {
		writeError(w, http.StatusBadRequest, "product id required")
		return
	}
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "error parsing form")
		return
	}

	update, err := productForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	photo, err := h.savePhoto(r)
	if err != nil {
		h.logger.Error("Error uploading photo", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "error uploading photo")
		return
	}
	if photo != "" {
		update.ImagePath = &photo
	}

	p, err := h.products.Update(r.Context(), 0, id, update)
	if err != nil {
		h.removePhoto(photo)
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := pathID(r, "/api/delete-product/")
	if !ok {
		writeError(w, http.StatusBadRequest, "product id required")
		return
	}
	if err := h.products.Delete(r.Context(), 0, id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

func (h *Handler) handleOrderStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := h.orders.GetOrderStatistics(r.Context())
	if err != nil {
		h.logger.Error("Error getting order statistics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "error getting order statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var verr service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, service.ErrProductNotFound), errors.Is(err, service.ErrCategoryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("Product API error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
