package screens

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"puntoventa/terminal/internal/apperr"
	"puntoventa/terminal/internal/domain"
	"puntoventa/terminal/internal/permissions"
)

// SalesBackend is the slice of the backend client the sales screen needs.
type SalesBackend interface {
	ListSales(ctx context.Context) ([]domain.Sale, error)
	SaleDetails(ctx context.Context, saleID int64) ([]domain.SaleDetail, error)
	CustomersWithDebt(ctx context.Context, filtro string) ([]domain.Customer, error)
	PayDebt(ctx context.Context, saleID int64, req domain.PayDebtRequest) (domain.PayDebtResponse, error)
}

// Sales covers the history screen and the debt-collection panel.
type Sales struct {
	backend SalesBackend
	gate    *permissions.Gate
	log     zerolog.Logger
}

func NewSales(backend SalesBackend, gate *permissions.Gate, log zerolog.Logger) *Sales {
	return &Sales{
		backend: backend,
		gate:    gate,
		log:     log.With().Str("screen", "sales").Logger(),
	}
}

func (s *Sales) History(ctx context.Context) ([]domain.Sale, error) {
	if err := s.gate.Check(permissions.CanViewSales); err != nil {
		return nil, err
	}
	return s.backend.ListSales(ctx)
}

func (s *Sales) Details(ctx context.Context, saleID int64) ([]domain.SaleDetail, error) {
	if err := s.gate.Check(permissions.CanViewSales); err != nil {
		return nil, err
	}
	return s.backend.SaleDetails(ctx, saleID)
}

// Debtors lists customers carrying debt, optionally filtered by a name or
// RUT fragment.
func (s *Sales) Debtors(ctx context.Context, filtro string) ([]domain.Customer, error) {
	if err := s.gate.Check(permissions.CanViewCustomers); err != nil {
		return nil, err
	}
	return s.backend.CustomersWithDebt(ctx, strings.TrimSpace(filtro))
}

// PayDebt registers a payment against a sale's outstanding debt. The amount
// is validated locally: it must parse, be positive, and not exceed what is
// owed, so an over-payment never reaches the backend.
func (s *Sales) PayDebt(ctx context.Context, saleID int64, owed decimal.Decimal, amountInput string) (domain.PayDebtResponse, error) {
	if err := s.gate.Check(permissions.CanEditCustomers); err != nil {
		return domain.PayDebtResponse{}, err
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(amountInput))
	if err != nil || !amount.IsPositive() {
		return domain.PayDebtResponse{}, apperr.New(apperr.CodeValidation, "enter an amount greater than 0")
	}
	if amount.GreaterThan(owed) {
		return domain.PayDebtResponse{}, apperr.New(apperr.CodeValidation, "payment exceeds the outstanding debt")
	}

	resp, err := s.backend.PayDebt(ctx, saleID, domain.PayDebtRequest{Monto: amount})
	if err != nil {
		return domain.PayDebtResponse{}, err
	}
	s.log.Info().Int64("sale_id", saleID).Str("monto", amount.String()).Msg("debt payment recorded")
	return resp, nil
}
