package main

import (
	"encoding/json"
	"net/http"

	"github.com/AtendeAI/atende-mvp/pkg/legacy"
)

func newMux(store *orderStore) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", handleRoot)
	mux.HandleFunc("GET /orders/{id}", handleGetOrder(store))
	mux.HandleFunc("POST /orders/{id}/cancel", handleCancelOrder(store))
	return mux
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, detail("Rota não encontrada"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "sistema legado de pedidos",
		"status":  "online",
	})
}

func handleGetOrder(store *orderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mLookups.Inc()
		order, ok := store.Get(r.PathValue("id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, detail("Pedido não encontrado"))
			return
		}
		writeJSON(w, http.StatusOK, order)
	}
}

func handleCancelOrder(store *orderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mCancels.Inc()
		id := r.PathValue("id")
		switch store.Cancel(id) {
		case cancelNotFound:
			writeJSON(w, http.StatusNotFound, detail("Pedido não encontrado"))
		case cancelAlreadyDelivered:
			writeJSON(w, http.StatusBadRequest, detail("Não é possível cancelar. O pedido já foi entregue."))
		default:
			writeJSON(w, http.StatusOK, legacy.CancelResult{
				OrderID: id,
				Status:  "CANCELADO",
				Message: "Pedido cancelado com sucesso.",
			})
		}
	}
}

func detail(msg string) map[string]string {
	return map[string]string{"detail": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
