// Package tools exposes the assistant's callable units behind a uniform
// contract: every tool has a name, a description the agent can reason over,
// and a Call that never lets an upstream fault escape as a raw transport
// error. Failures of external collaborators come back as structured payloads.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AtendeAI/atende-mvp/engine/domain"
	"github.com/AtendeAI/atende-mvp/pkg/legacy"
)

// NoPoliciesFound is returned by the policy tool when retrieval comes back
// empty. Callers can distinguish it from a genuine (short) answer.
const NoPoliciesFound = "Não encontrei políticas específicas sobre isso."

// Tool is a callable unit with descriptive metadata.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input map[string]any) (any, error)
}

// OrderAPI is the slice of the legacy client the order tools use.
type OrderAPI interface {
	GetOrder(ctx context.Context, orderID string) (*legacy.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*legacy.CancelResult, error)
}

// Retriever answers free-text questions with ranked documents.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.Document, error)
}

func stringArg(input map[string]any, key string) (string, error) {
	v, ok := input[key]
	if !ok {
		return "", fmt.Errorf("tools: missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("tools: argument %q must be a string", key)
	}
	return s, nil
}

// --- consultar_pedido ---

// ConsultarPedido looks an order up in the legacy system.
type ConsultarPedido struct {
	api OrderAPI
}

// NewConsultarPedido creates the order-lookup tool.
func NewConsultarPedido(api OrderAPI) *ConsultarPedido {
	return &ConsultarPedido{api: api}
}

func (t *ConsultarPedido) Name() string { return "consultar_pedido" }

func (t *ConsultarPedido) Description() string {
	return "Consulta os detalhes técnicos de um pedido (status, itens, valor) no sistema legado. " +
		"Use esta ferramenta SEMPRE que precisar saber o status ou dados de um pedido."
}

// Call returns the order on success, or a structured {erro: ...} payload.
// It never returns a transport error.
func (t *ConsultarPedido) Call(ctx context.Context, input map[string]any) (any, error) {
	orderID, err := stringArg(input, "order_id")
	if err != nil {
		return nil, err
	}

	order, err := t.api.GetOrder(ctx, orderID)
	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, legacy.ErrOrderNotFound):
		return map[string]any{"erro": "Pedido não encontrado no sistema."}, nil
	default:
		var apiErr *legacy.APIError
		if errors.As(err, &apiErr) {
			return map[string]any{"erro": fmt.Sprintf("Erro técnico na API: %d", apiErr.Status)}, nil
		}
		return map[string]any{"erro": fmt.Sprintf("Falha de conexão com o sistema de pedidos: %v", err)}, nil
	}
}

// --- cancelar_pedido ---

// CancelarPedido cancels an order in the legacy system.
type CancelarPedido struct {
	api OrderAPI
}

// NewCancelarPedido creates the order-cancellation tool.
func NewCancelarPedido(api OrderAPI) *CancelarPedido {
	return &CancelarPedido{api: api}
}

func (t *CancelarPedido) Name() string { return "cancelar_pedido" }

func (t *CancelarPedido) Description() string {
	return "Realiza o cancelamento efetivo de um pedido no sistema. " +
		"Use esta ferramenta APENAS quando o cliente solicitar explicitamente o cancelamento " +
		"E você já tiver verificado nas políticas que é permitido."
}

// Call returns the cancellation confirmation on success. Upstream refusals
// come back with the upstream's own detail message, unchanged.
func (t *CancelarPedido) Call(ctx context.Context, input map[string]any) (any, error) {
	orderID, err := stringArg(input, "order_id")
	if err != nil {
		return nil, err
	}

	result, err := t.api.CancelOrder(ctx, orderID)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, legacy.ErrOrderNotFound):
		return map[string]any{"detail": "Pedido não encontrado"}, nil
	default:
		var apiErr *legacy.APIError
		if errors.As(err, &apiErr) {
			return map[string]any{"detail": apiErr.Detail}, nil
		}
		return map[string]any{"erro": fmt.Sprintf("Falha ao tentar cancelar: %v", err)}, nil
	}
}

// --- consultar_politicas ---

// ConsultarPoliticas searches the knowledge base of refund and cancellation
// policies.
type ConsultarPoliticas struct {
	retriever Retriever
}

// NewConsultarPoliticas creates the policy-lookup tool.
func NewConsultarPoliticas(retriever Retriever) *ConsultarPoliticas {
	return &ConsultarPoliticas{retriever: retriever}
}

func (t *ConsultarPoliticas) Name() string { return "consultar_politicas" }

func (t *ConsultarPoliticas) Description() string {
	return "Pesquisa na Base de Conhecimento (Políticas de Reembolso e Cancelamento). " +
		"Use esta ferramenta para saber SE um reembolso é permitido ou quais são as regras."
}

// Call returns the retrieved policy snippets joined by a blank line, in
// retriever order, or the NoPoliciesFound sentinel when nothing matched.
// Retrieval-layer failures (index corruption, embedder init) propagate.
func (t *ConsultarPoliticas) Call(ctx context.Context, input map[string]any) (any, error) {
	duvida, err := stringArg(input, "duvida")
	if err != nil {
		return nil, err
	}

	docs, err := t.retriever.Retrieve(ctx, duvida)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return NoPoliciesFound, nil
	}

	parts := make([]string, len(docs))
	for i, doc := range docs {
		parts[i] = doc.Content
	}
	return strings.Join(parts, "\n\n"), nil
}
