// Package domain defines core domain types, constants, and validation for the
// knowledge-base pipeline. It acts as the validation gate at pipeline entry points.
package domain

import "fmt"

// Record is one row of the tabular knowledge source. Immutable once read.
type Record struct {
	Pergunta  string `json:"pergunta"`
	Resposta  string `json:"resposta"`
	Categoria string `json:"categoria"`
	Fonte     string `json:"fonte"`
}

// Document is the unit stored in the vector index.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Metadata keys present on every indexed document.
const (
	MetaCategoria = "categoria"
	MetaFonte     = "fonte"
)

// DocumentFromRecord synthesizes the indexed document for a knowledge record.
// Content follows a fixed template; metadata carries categoria and fonte.
func DocumentFromRecord(rec Record) Document {
	return Document{
		Content: fmt.Sprintf("Pergunta: %s\nResposta: %s\nFonte: %s",
			rec.Pergunta, rec.Resposta, rec.Fonte),
		Metadata: map[string]string{
			MetaCategoria: rec.Categoria,
			MetaFonte:     rec.Fonte,
		},
	}
}

// OrderStatus is the legacy order system's status enum.
type OrderStatus string

const (
	StatusPreparing OrderStatus = "PREPARANDO"
	StatusInTransit OrderStatus = "EM_ROTA"
	StatusDelivered OrderStatus = "ENTREGUE"
	StatusCancelled OrderStatus = "CANCELADO"
)

// ValidOrderStatuses is the set of recognised order statuses.
var ValidOrderStatuses = map[OrderStatus]bool{
	StatusPreparing: true,
	StatusInTransit: true,
	StatusDelivered: true,
	StatusCancelled: true,
}
