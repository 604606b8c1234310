package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/salonchat/supportdesk/internal/catalog"
	"github.com/salonchat/supportdesk/pkg/logging"
)

var sessionsTracer = otel.Tracer("supportdesk.internal.sessions")

// ProductLookup resolves product documents.
type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
}

// ExpiryScheduler plans the reminder sent before a package expires.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, cp *CustomerProduct) error
}

// Service assigns packages to customers and applies staff corrections.
type Service struct {
	store     *Store
	products  ProductLookup
	reminders ExpiryScheduler
	logger    *logging.Logger
	now       func() time.Time
}

// NewService constructs a session ledger service. reminders may be nil.
func NewService(store *Store, products ProductLookup, reminders ExpiryScheduler, logger *logging.Logger) *Service {
	if store == nil {
		panic("sessions: store required")
	}
	if products == nil {
		panic("sessions: product lookup required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, products: products, reminders: reminders, logger: logger, now: time.Now}
}

// AssignInput describes a package sale.
type AssignInput struct {
	CustomerID   string     `json:"customerId"`
	ProductID    string     `json:"productId"`
	AssignedDate *time.Time `json:"assignedDate,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

// Assign creates a package for the customer from the product's terms.
func (s *Service) Assign(ctx context.Context, in AssignInput) (*CustomerProduct, error) {
	ctx, span := sessionsTracer.Start(ctx, "sessions.assign")
	defer span.End()
	span.SetAttributes(
		attribute.String("supportdesk.customer_id", in.CustomerID),
		attribute.String("supportdesk.product_id", in.ProductID),
	)

	in.CustomerID = strings.TrimSpace(in.CustomerID)
	if in.CustomerID == "" || strings.TrimSpace(in.ProductID) == "" {
		return nil, fmt.Errorf("%w: customerId and productId required", ErrInvalidAssignment)
	}
	product, err := s.products.GetProduct(ctx, in.ProductID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sessions: assign: %w", err)
	}
	if !product.IsSessionBased() {
		return nil, fmt.Errorf("%w: product %s has no sessions", ErrInvalidAssignment, product.ID)
	}

	assigned := s.now().UTC()
	if in.AssignedDate != nil {
		assigned = in.AssignedDate.UTC()
	}
	cp := NewCustomerProduct(in.CustomerID, product, assigned)
	cp.Notes = in.Notes
	if err := s.store.Create(ctx, &cp); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("package assigned",
		"customer_product_id", cp.ID,
		"customer_id", cp.CustomerID,
		"product_id", cp.ProductID,
		"total_sessions", cp.TotalSessions,
	)
	s.scheduleExpiry(ctx, &cp)
	return &cp, nil
}

// Get loads a package.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*CustomerProduct, error) {
	return s.store.Get(ctx, id)
}

// ListByCustomer returns every package a customer holds.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]CustomerProduct, error) {
	return s.store.ListByCustomer(ctx, customerID)
}

// AdjustInput carries staff edits; nil fields are left alone.
type AdjustInput struct {
	TotalSessions *int       `json:"totalSessions,omitempty"`
	UsedSessions  *int       `json:"usedSessions,omitempty"`
	IsActive      *bool      `json:"isActive,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	ExpiryDate    *time.Time `json:"expiryDate,omitempty"`
}

// Adjust applies staff corrections and recomputes remaining sessions.
func (s *Service) Adjust(ctx context.Context, id uuid.UUID, in AdjustInput) (*CustomerProduct, error) {
	ctx, span := sessionsTracer.Start(ctx, "sessions.adjust")
	defer span.End()
	span.SetAttributes(attribute.String("supportdesk.customer_product_id", id.String()))

	cp, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.TotalSessions != nil {
		if err := SetTotalSessions(cp, *in.TotalSessions); err != nil {
			return nil, err
		}
	}
	if in.UsedSessions != nil {
		if err := SetUsedSessions(cp, *in.UsedSessions); err != nil {
			return nil, err
		}
	}
	activeChanged := in.IsActive != nil && *in.IsActive != cp.IsActive
	if in.IsActive != nil {
		cp.IsActive = *in.IsActive
	}
	if in.Notes != nil {
		cp.Notes = *in.Notes
	}
	expiryChanged := false
	if in.ExpiryDate != nil {
		expiry := in.ExpiryDate.UTC()
		expiryChanged = cp.ExpiryDate == nil || !cp.ExpiryDate.Equal(expiry)
		cp.ExpiryDate = &expiry
	}
	if err := s.store.Update(ctx, cp); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("package adjusted",
		"customer_product_id", cp.ID,
		"total_sessions", cp.TotalSessions,
		"used_sessions", cp.UsedSessions,
		"remaining_sessions", cp.RemainingSessions,
	)
	if expiryChanged || activeChanged {
		s.scheduleExpiry(ctx, cp)
	}
	return cp, nil
}

// Delete removes a package on staff request.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("package deleted", "customer_product_id", id)
	return nil
}

// scheduleExpiry also runs for inactive packages so their pending reminder
// is cleared.
func (s *Service) scheduleExpiry(ctx context.Context, cp *CustomerProduct) {
	if s.reminders == nil || (cp.ExpiryDate == nil && cp.IsActive) {
		return
	}
	if err := s.reminders.ScheduleExpiry(ctx, cp); err != nil {
		s.logger.Warn("expiry reminder not scheduled", "customer_product_id", cp.ID, "error", err)
	}
}

// IsClientError reports errors caused by the request rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCount) || errors.Is(err, ErrInvalidAssignment) || errors.Is(err, ErrNoSessionsRemaining) ||
		errors.Is(err, ErrExpired) || errors.Is(err, ErrInactive)
}
