package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
)

// Dependencies содержит хранилища приложения.
type Dependencies struct {
	Orders   domain.OrderRepository
	Products domain.ProductRepository
	Coupons  domain.CouponRepository
	Payments domain.PaymentRepository
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository
	Logger   *log.Entry
}

// NewMemoryDependencies собирает in-memory хранилища (dev-режим и тесты).
func NewMemoryDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Orders:   memory.NewOrderRepository(),
		Products: memory.NewProductRepository(),
		Coupons:  memory.NewCouponRepository(),
		Payments: memory.NewPaymentRepository(),
		Outbox:   memory.NewOutboxRepository(),
		Timeline: memory.NewTimelineRepository(),
		Logger:   logger,
	}
}

// NewPostgresDependencies собирает PostgreSQL-хранилища поверх открытого Store.
func NewPostgresDependencies(store *postgres.Store, logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Orders:   postgres.NewOrderRepository(store),
		Products: postgres.NewProductRepository(store),
		Coupons:  postgres.NewCouponRepository(store),
		Payments: postgres.NewPaymentRepository(store),
		Outbox:   postgres.NewOutboxRepository(store),
		Timeline: postgres.NewTimelineRepository(store),
		Logger:   logger,
	}
}
