package domain

import "strings"

// ValidateRecord checks a knowledge record before indexing. A record needs at
// least a pergunta or a resposta; categoria and fonte may be blank (they are
// still coerced to strings in metadata).
func ValidateRecord(rec Record) error {
	if strings.TrimSpace(rec.Pergunta) == "" && strings.TrimSpace(rec.Resposta) == "" {
		return ErrEmptyRecord
	}
	return nil
}

// ValidateDocument enforces the index invariant: content is never empty and
// the stable metadata keys are always present.
func ValidateDocument(doc Document) error {
	if strings.TrimSpace(doc.Content) == "" {
		return ErrEmptyRecord
	}
	if doc.Metadata == nil {
		return ErrEmptyRecord
	}
	for _, key := range []string{MetaCategoria, MetaFonte} {
		if _, ok := doc.Metadata[key]; !ok {
			return ErrMissingColumn
		}
	}
	return nil
}
