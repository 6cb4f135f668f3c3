package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/AtendeAI/atende-mvp/engine/tools"
)

func newMux(registry *tools.Registry, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /tools/consultar-pedido", handleOrderTool(registry, "consultar_pedido", logger))
	mux.HandleFunc("POST /tools/cancelar-pedido", handleOrderTool(registry, "cancelar_pedido", logger))
	mux.HandleFunc("POST /tools/consultar-politicas", handlePolicies(registry, logger))
	return mux
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "online",
		"service": "atende-middleware",
	})
}

// OrderToolRequest is the JSON body for the order tool endpoints.
type OrderToolRequest struct {
	OrderID string `json:"order_id"`
}

func handleOrderTool(registry *tools.Registry, name string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tool, ok := registry.Get(name)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, detail("ferramenta não registrada"))
			return
		}

		var req OrderToolRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
			writeJSON(w, http.StatusBadRequest, detail("order_id é obrigatório"))
			return
		}

		out, err := tool.Call(r.Context(), map[string]any{"order_id": req.OrderID})
		if err != nil {
			logger.Error("tool call failed", "tool", name, "err", err)
			writeJSON(w, http.StatusInternalServerError, detail("erro interno"))
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// PoliciesRequest is the JSON body for POST /tools/consultar-politicas.
type PoliciesRequest struct {
	Duvida string `json:"duvida"`
}

// PoliciesResponse carries the retrieved policy context.
type PoliciesResponse struct {
	Contexto string `json:"contexto_encontrado"`
}

func handlePolicies(registry *tools.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tool, ok := registry.Get("consultar_politicas")
		if !ok {
			writeJSON(w, http.StatusInternalServerError, detail("ferramenta não registrada"))
			return
		}

		var req PoliciesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Duvida == "" {
			writeJSON(w, http.StatusBadRequest, detail("duvida é obrigatória"))
			return
		}

		out, err := tool.Call(r.Context(), map[string]any{"duvida": req.Duvida})
		if err != nil {
			logger.Error("policy retrieval failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, detail("erro interno"))
			return
		}

		contexto, _ := out.(string)
		writeJSON(w, http.StatusOK, PoliciesResponse{Contexto: contexto})
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
