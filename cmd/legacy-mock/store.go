package main

import (
	"sync"
	"time"

	"github.com/AtendeAI/atende-mvp/engine/domain"
	"github.com/AtendeAI/atende-mvp/pkg/legacy"
)

// orderStore is the in-memory order database, seeded with the two orders the
// development scenarios use: one already delivered, one still in preparation.
type orderStore struct {
	mu     sync.Mutex
	orders map[string]*legacy.Order
}

func newOrderStore() *orderStore {
	now := time.Now().UTC()
	return &orderStore{
		orders: map[string]*legacy.Order{
			"12345": {
				OrderID:      "12345",
				CustomerName: "João Silva",
				Status:       domain.StatusDelivered,
				Items: []legacy.OrderItem{
					{ItemName: "Tênis de Corrida", Quantity: 1, Price: 299.90},
					{ItemName: "Meia Esportiva", Quantity: 2, Price: 24.90},
				},
				TotalValue:        349.70,
				CreatedAt:         now.AddDate(0, 0, -10),
				EstimatedDelivery: now.AddDate(0, 0, -3),
			},
			"67890": {
				OrderID:      "67890",
				CustomerName: "Maria Oliveira",
				Status:       domain.StatusPreparing,
				Items: []legacy.OrderItem{
					{ItemName: "Fone de Ouvido Bluetooth", Quantity: 1, Price: 189.90},
				},
				TotalValue:        189.90,
				CreatedAt:         now.AddDate(0, 0, -1),
				EstimatedDelivery: now.AddDate(0, 0, 4),
			},
		},
	}
}

// Get returns a copy of the order, so callers never see later mutations.
func (s *orderStore) Get(id string) (legacy.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return legacy.Order{}, false
	}
	return *order, true
}

// cancelOutcome tells the handler which response to produce.
type cancelOutcome int

const (
	cancelOK cancelOutcome = iota
	cancelNotFound
	cancelAlreadyDelivered
)

// Cancel flips the order to CANCELADO unless it was already delivered.
func (s *orderStore) Cancel(id string) cancelOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return cancelNotFound
	}
	if order.Status == domain.StatusDelivered {
		return cancelAlreadyDelivered
	}
	order.Status = domain.StatusCancelled
	return cancelOK
}
