// Package screens implements the terminal's management surfaces outside the
// point-of-sale core: stock, employees, and sales history. Each screen wraps
// the backend client with the capability gate and local validation, and
// refetches after every mutation so the display never shows stale rows.
package screens

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"puntoventa/terminal/internal/apperr"
	"puntoventa/terminal/internal/domain"
	"puntoventa/terminal/internal/permissions"
)

// StockBackend is the slice of the backend client the stock screen needs.
type StockBackend interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	UpsertProduct(ctx context.Context, req domain.ProductUpsertRequest) error
	FinalizeStock(ctx context.Context, req domain.StockFinalizeRequest) error
}

// Stock drives the inventory screen: product and category listings, single
// edits, and the staged batch that a stock intake finalizes in one call.
type Stock struct {
	backend  StockBackend
	gate     *permissions.Gate
	validate *validator.Validate
	log      zerolog.Logger
	staged   []domain.ProductUpsertRequest
}

func NewStock(backend StockBackend, gate *permissions.Gate, log zerolog.Logger) *Stock {
	return &Stock{
		backend:  backend,
		gate:     gate,
		validate: validator.New(),
		log:      log.With().Str("screen", "stock").Logger(),
	}
}

func (s *Stock) Products(ctx context.Context) ([]domain.Product, error) {
	if err := s.gate.Check(permissions.CanViewProducts); err != nil {
		return nil, err
	}
	return s.backend.ListProducts(ctx)
}

func (s *Stock) Categories(ctx context.Context) ([]domain.Category, error) {
	if err := s.gate.Check(permissions.CanViewProducts); err != nil {
		return nil, err
	}
	return s.backend.ListCategories(ctx)
}

// SaveProduct validates and persists a single product edit, then refetches
// the listing.
func (s *Stock) SaveProduct(ctx context.Context, req domain.ProductUpsertRequest) ([]domain.Product, error) {
	if err := s.gate.Check(permissions.CanEditProducts); err != nil {
		return nil, err
	}
	req.SKU = strings.TrimSpace(req.SKU)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, "sku, name and stock unit are required")
	}
	if req.Price.IsNegative() || req.Stock.IsNegative() {
		return nil, apperr.New(apperr.CodeValidation, "price and stock cannot be negative")
	}
	if err := s.backend.UpsertProduct(ctx, req); err != nil {
		return nil, err
	}
	s.log.Info().Str("sku", req.SKU).Msg("product saved")
	return s.backend.ListProducts(ctx)
}

// Stage adds a validated row to the pending intake batch.
func (s *Stock) Stage(req domain.ProductUpsertRequest) error {
	if err := s.gate.Check(permissions.CanManageStock); err != nil {
		return err
	}
	req.SKU = strings.TrimSpace(req.SKU)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return apperr.Wrap(apperr.CodeValidation, err, "sku, name and stock unit are required")
	}
	s.staged = append(s.staged, req)
	return nil
}

func (s *Stock) Staged() []domain.ProductUpsertRequest {
	out := make([]domain.ProductUpsertRequest, len(s.staged))
	copy(out, s.staged)
	return out
}

func (s *Stock) DiscardStaged() {
	s.staged = nil
}

// Finalize submits the staged batch in one request and clears it on success.
// A failed submission keeps the batch so it can be retried.
func (s *Stock) Finalize(ctx context.Context) ([]domain.Product, error) {
	if err := s.gate.Check(permissions.CanManageStock); err != nil {
		return nil, err
	}
	if len(s.staged) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "nothing staged to finalize")
	}
	if err := s.backend.FinalizeStock(ctx, domain.StockFinalizeRequest{Items: s.staged}); err != nil {
		return nil, err
	}
	s.log.Info().Int("items", len(s.staged)).Msg("stock intake finalized")
	s.staged = nil
	return s.backend.ListProducts(ctx)
}
