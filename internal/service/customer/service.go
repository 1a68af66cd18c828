// Package customer регистрирует покупателей.
package customer

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// Service регистрирует клиентов с уникальным email.
type Service struct {
	tx      domain.Transactor
	metrics *metrics.ShopMetrics
	logger  *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

// WithMetrics задаёт бизнес-метрики.
func WithMetrics(m *metrics.ShopMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService создаёт сервис клиентов.
func NewService(tx domain.Transactor, options ...Option) *Service {
	s := &Service{tx: tx}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "customer-service")
	}
	return s
}

// CreateCustomer регистрирует клиента. Email сравнивается без учёта регистра,
// повтор даёт KindCustomerConflict.
func (s *Service) CreateCustomer(ctx context.Context, name, email string) (domain.Customer, error) {
	candidate := domain.Customer{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
	if errs := candidate.Validate(); len(errs) > 0 {
		return domain.Customer{}, domain.NewInvalidArgument(errs...)
	}

	var created domain.Customer
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		existing, err := repos.Customers.FindByEmail(ctx, candidate.Email)
		switch {
		case err == nil:
			return domain.NewCustomerConflict(existing.Email)
		case !errors.Is(err, domain.ErrCustomerNotFound):
			return err
		}

		customer, err := repos.Customers.Create(ctx, candidate)
		if err != nil {
			return err
		}
		msg, err := domain.NewCustomerCreatedMessage(customer)
		if err != nil {
			return err
		}
		if _, err := repos.Outbox.Enqueue(ctx, msg); err != nil {
			return err
		}
		created = customer
		return nil
	})
	if err != nil {
		entry := s.logger.WithError(err)
		if kind := domain.KindOf(err); kind != "" {
			entry.WithField("kind", kind).Warn("customer rejected")
		} else {
			entry.Error("customer registration failed")
		}
		return domain.Customer{}, err
	}

	s.metrics.RecordCustomerCreated()
	s.logger.WithField("customer_id", created.ID).Info("customer created")
	return created, nil
}
