package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"inventoryconsolidator/internal/inventory"
)

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorBody{Error: code, Detail: detail})
}

// recordView is the public shape of a record; the dedup window stays internal.
type recordView struct {
	StoreID      string    `json:"store_id"`
	SKU          string    `json:"sku"`
	ProductID    string    `json:"product_id"`
	Name         string    `json:"name"`
	Quantity     int64     `json:"quantity"`
	UnitPrice    string    `json:"unit_price"`
	Active       bool      `json:"active"`
	Available    bool      `json:"available"`
	LastSequence uint64    `json:"last_sequence"`
	LastEventAt  time.Time `json:"last_event_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

func newRecordView(r inventory.Record) recordView {
	return recordView{
		StoreID:      r.StoreID,
		SKU:          r.SKU,
		ProductID:    r.ProductID,
		Name:         r.Name,
		Quantity:     r.Quantity,
		UnitPrice:    r.UnitPrice.String(),
		Active:       r.Active,
		Available:    r.Available(),
		LastSequence: r.LastSequence,
		LastEventAt:  r.LastEventAt,
		ModifiedAt:   r.ModifiedAt,
	}
}

func newRecordViews(recs []inventory.Record) []recordView {
	out := make([]recordView, 0, len(recs))
	for _, r := range recs {
		out = append(out, newRecordView(r))
	}
	return out
}

type listingView struct {
	Count   int          `json:"count"`
	Records []recordView `json:"records"`
}

type availabilityView struct {
	SKU           string       `json:"sku"`
	TotalQuantity int64        `json:"total_quantity"`
	Stores        int          `json:"stores"`
	Records       []recordView `json:"records"`
}
