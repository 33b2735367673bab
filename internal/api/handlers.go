package api

import (
	"net/http"
	"strconv"

	"github.com/neroshop/neroshop-server/internal/cart"
	"github.com/neroshop/neroshop-server/internal/market"
	"github.com/neroshop/neroshop-server/internal/order"
)

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func hideIllicit(r *http.Request) bool {
	v := r.URL.Query().Get("hide_illicit")
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err != nil || b
}

func listingsPayload(listings []*market.Listing) map[string]interface{} {
	if listings == nil {
		listings = []*market.Listing{}
	}
	return map[string]interface{}{
		"count":    len(listings),
		"listings": listings,
	}
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	sortBy, err := market.ParseSort(r.URL.Query().Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var listings []*market.Listing
	if limit := queryLimit(r); limit > 0 && sortBy == market.SortMostRecent {
		listings, err = s.catalog.RecentListings(r.Context(), limit, hideIllicit(r))
	} else {
		listings, err = s.catalog.Listings(r.Context(), sortBy, hideIllicit(r))
		if limit > 0 && len(listings) > limit {
			listings = listings[:limit]
		}
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listingsPayload(listings))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing q")
		return
	}
	listings, err := s.catalog.SearchListings(r.Context(), q, queryLimit(r), hideIllicit(r))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listingsPayload(listings))
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	listings, err := s.catalog.ListingsByCategory(r.Context(), r.PathValue("name"), hideIllicit(r))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listingsPayload(listings))
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, err := s.catalog.User(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	name, err := s.catalog.DisplayName(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":         user,
		"display_name": name,
	})
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	listings, err := s.catalog.Inventory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listingsPayload(listings))
}

func (s *Server) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		orders []*order.Order
		err    error
	)
	if r.URL.Query().Get("role") == "seller" {
		orders, err = s.orders.OrdersBySeller(r.Context(), id)
	} else {
		orders, err = s.orders.OrdersByCustomer(r.Context(), id)
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(orders),
		"orders": orders,
	})
}

func (s *Server) handleSellerRatings(w http.ResponseWriter, r *http.Request) {
	ratings, err := s.catalog.SellerRatings(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if ratings == nil {
		ratings = []*market.SellerRating{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ratings": ratings,
		"summary": market.SummarizeSellerRatings(ratings),
	})
}

func (s *Server) handleProductRatings(w http.ResponseWriter, r *http.Request) {
	ratings, err := s.catalog.ProductRatings(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if ratings == nil {
		ratings = []*market.ProductRating{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ratings": ratings,
		"summary": market.SummarizeProductRatings(ratings),
	})
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productID")
	n, err := s.catalog.StockAvailable(r.Context(), productID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"product_id": productID,
		"available":  n,
	})
}

// Carts

func cartPayload(c *cart.Cart) map[string]interface{} {
	return map[string]interface{}{
		"id":             c.ID,
		"owner_id":       c.OwnerID,
		"items":          c.Snapshot(),
		"total_quantity": c.TotalQuantity(),
	}
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.carts.Load(r.Context(), r.PathValue("owner"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartPayload(c))
}

// updateCart applies fn to the owner's cart and writes the result.
func (s *Server) updateCart(w http.ResponseWriter, r *http.Request, fn func(*cart.Cart) error) {
	var out *cart.Cart
	err := s.carts.WithCart(r.Context(), r.PathValue("owner"), func(c *cart.Cart) error {
		if err := fn(c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartPayload(out))
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var item cart.Item
	if !decodeBody(w, r, &item) {
		return
	}
	s.updateCart(w, r, func(c *cart.Cart) error { return c.Add(item) })
}

func (s *Server) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity int `json:"quantity"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	key := r.PathValue("key")
	s.updateCart(w, r, func(c *cart.Cart) error { return c.SetQuantity(key, body.Quantity) })
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	s.updateCart(w, r, func(c *cart.Cart) error { return c.Remove(key) })
}

func (s *Server) handleEmptyCart(w http.ResponseWriter, r *http.Request) {
	s.updateCart(w, r, func(c *cart.Cart) error {
		c.Empty()
		return nil
	})
}

// Orders

type placeOrderRequest struct {
	Owner           string `json:"owner"`
	ShippingAddress string `json:"shipping_address"`
}

type placedPayload struct {
	Key   string       `json:"key"`
	Order *order.Order `json:"order"`
	Error string       `json:"error,omitempty"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "missing owner")
		return
	}

	res, err := s.orders.PlaceOrder(r.Context(), req.Owner, req.ShippingAddress)
	if err != nil {
		writeFailure(w, err)
		return
	}

	placed := make([]placedPayload, 0, len(res.Orders))
	for _, p := range res.Orders {
		pp := placedPayload{Key: p.Key, Order: p.Order}
		if p.Err != nil {
			pp.Error = p.Err.Error()
		}
		placed = append(placed, pp)
	}
	status := http.StatusCreated
	if len(res.Failed()) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]interface{}{
		"mode":   res.Mode,
		"orders": placed,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.orders.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor string `json:"actor"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	o, err := s.orders.Cancel(r.Context(), r.PathValue("key"), body.Actor)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status order.Status `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	o, err := s.orders.UpdateStatus(r.Context(), r.PathValue("key"), body.Status)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
