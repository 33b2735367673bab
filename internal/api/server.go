// Package api serves the marketplace over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neroshop/neroshop-server/internal/cart"
	"github.com/neroshop/neroshop-server/internal/dht"
	"github.com/neroshop/neroshop-server/internal/market"
	"github.com/neroshop/neroshop-server/internal/order"
	"github.com/neroshop/neroshop-server/internal/storage"
)

var log = logging.Logger("api")

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	RatePerSecond float64
	Burst         int
	// Gatherer enables /metrics when set.
	Gatherer prometheus.Gatherer
}

// Server routes API requests to the catalog, cart store and order service.
type Server struct {
	mux     *http.ServeMux
	catalog *market.Catalog
	carts   *cart.Store
	orders  *order.Service
	limiter *ClientRateLimiter
	http    *http.Server
}

// New creates a server. Routes are registered immediately.
func New(catalog *market.Catalog, carts *cart.Store, orders *order.Service, opts Options) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		catalog: catalog,
		carts:   carts,
		orders:  orders,
	}
	if opts.RatePerSecond > 0 {
		s.limiter = NewClientRateLimiter(opts.RatePerSecond, opts.Burst)
	}
	s.registerRoutes()
	if opts.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/listings", s.handleListings)
	s.mux.HandleFunc("GET /api/listings/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/categories/{name}/listings", s.handleCategory)
	s.mux.HandleFunc("GET /api/users/{id}", s.handleUser)
	s.mux.HandleFunc("GET /api/users/{id}/inventory", s.handleInventory)
	s.mux.HandleFunc("GET /api/users/{id}/orders", s.handleUserOrders)
	s.mux.HandleFunc("GET /api/sellers/{id}/ratings", s.handleSellerRatings)
	s.mux.HandleFunc("GET /api/products/{id}/ratings", s.handleProductRatings)
	s.mux.HandleFunc("GET /api/stock/{productID}", s.handleStock)

	s.mux.HandleFunc("GET /api/carts/{owner}", s.handleGetCart)
	s.mux.HandleFunc("POST /api/carts/{owner}/items", s.handleAddItem)
	s.mux.HandleFunc("PUT /api/carts/{owner}/items/{key}", s.handleSetQuantity)
	s.mux.HandleFunc("DELETE /api/carts/{owner}/items/{key}", s.handleRemoveItem)
	s.mux.HandleFunc("DELETE /api/carts/{owner}", s.handleEmptyCart)

	s.mux.HandleFunc("POST /api/orders", s.handlePlaceOrder)
	s.mux.HandleFunc("GET /api/orders/{key}", s.handleGetOrder)
	s.mux.HandleFunc("POST /api/orders/{key}/cancel", s.handleCancelOrder)
	s.mux.HandleFunc("POST /api/orders/{key}/status", s.handleUpdateStatus)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	s.mux.ServeHTTP(w, r)
}

// Start listens on addr in the background.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting API server on %s", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
		},
	})
}

// writeFailure maps domain errors onto HTTP statuses.
func writeFailure(w http.ResponseWriter, err error) {
	if ve, ok := order.IsValidation(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error": map[string]interface{}{
				"message":     ve.Error(),
				"reason":      string(ve.Reason),
				"listing_key": ve.ListingKey,
			},
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, cart.ErrNotInCart):
		status = http.StatusNotFound
	case errors.Is(err, order.ErrCancelNotAllowed):
		status = http.StatusConflict
	case errors.Is(err, cart.ErrCartFull), errors.Is(err, cart.ErrQuantityLimit), errors.Is(err, cart.ErrInvalidItem):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case dht.IsTransport(err):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		log.Errorf("Request failed: %v", err)
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
