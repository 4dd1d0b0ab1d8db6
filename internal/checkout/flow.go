package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"puntoventa/terminal/internal/apperr"
	"puntoventa/terminal/internal/cart"
	"puntoventa/terminal/internal/domain"
	"puntoventa/terminal/internal/permissions"
)

// State is the checkout's position in the payment flow.
type State int

const (
	StateIdle State = iota
	StateMethodChosen
	StateAwaitingTransferInfo
	StateAwaitingCustomerInfo
	StateReadyToPersist
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMethodChosen:
		return "method_chosen"
	case StateAwaitingTransferInfo:
		return "awaiting_transfer_info"
	case StateAwaitingCustomerInfo:
		return "awaiting_customer_info"
	case StateReadyToPersist:
		return "ready_to_persist"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// SaleBackend is the slice of the backend client the checkout needs.
type SaleBackend interface {
	CreateSale(ctx context.Context, sale domain.SaleRecord) (domain.SaleCreateResponse, error)
	CustomerByRUT(ctx context.Context, rut string) (domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (domain.Customer, error)
}

// TransferForm must be completed before a transfer sale can be finalized.
type TransferForm struct {
	Titular string `validate:"required"`
	Banco   string `validate:"required"`
}

// CustomerForm is filled when a sale leaves a debt. Rut is optional; name and
// phone are how the debt is chased later.
type CustomerForm struct {
	Rut      string `validate:"omitempty,min=3"`
	Nombre   string `validate:"required"`
	Telefono string `validate:"required"`
}

// Summary is shown after a sale persists, before the cart is cleared.
type Summary struct {
	SaleID     int64
	Total      decimal.Decimal
	Recibido   decimal.Decimal
	Cambio     decimal.Decimal
	Deuda      decimal.Decimal
	MetodoPago string
	Ganancia   decimal.Decimal
	ClienteID  *int64
}

type Flow struct {
	mu       sync.Mutex
	backend  SaleBackend
	cart     *cart.Cart
	gate     *permissions.Gate
	payment  *Payment
	validate *validator.Validate
	log      zerolog.Logger
	userID   int64

	state          State
	idempotencyKey string
	transfer       *domain.TransferInfo
	customerID     *int64
	inFlight       bool
	summary        *Summary
}

type FlowOptions struct {
	Backend SaleBackend
	Cart    *cart.Cart
	Gate    *permissions.Gate
	UserID  int64
	Logger  zerolog.Logger
}

func NewFlow(opts FlowOptions) *Flow {
	return &Flow{
		backend:  opts.Backend,
		cart:     opts.Cart,
		gate:     opts.Gate,
		payment:  NewPayment(),
		validate: validator.New(),
		log:      opts.Logger.With().Str("component", "checkout").Logger(),
		userID:   opts.UserID,
		state:    StateIdle,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) Payment() *Payment {
	return f.payment
}

// Begin starts a checkout with the chosen payment method. The idempotency key
// is minted here and survives retries until Acknowledge or Abandon, so a sale
// the backend already recorded is never duplicated.
func (f *Flow) Begin(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateCompleted {
		return apperr.New(apperr.CodeValidation, "acknowledge the completed sale first")
	}
	if f.cart.Len() == 0 {
		return apperr.New(apperr.CodeValidation, "cannot check out an empty cart")
	}
	switch method {
	case domain.PaymentCash, domain.PaymentTransfer, domain.PaymentCredit:
	default:
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("unknown payment method %q", method))
	}

	if f.idempotencyKey == "" {
		f.idempotencyKey = uuid.NewString()
	}
	// Switching methods mid-checkout drops the sub-form for the old one.
	f.transfer = nil
	f.customerID = nil
	f.payment.SetMethod(method)
	f.state = StateMethodChosen
	return nil
}

// SetReceived feeds the received-amount input through the payment arithmetic
// against the live cart total.
func (f *Flow) SetReceived(input string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payment.SetReceived(input, f.cart.Total())
}

// Advance inspects the current payment and moves the flow to whichever
// sub-form is still missing, or straight to ready when none is needed.
// Transfers never leave debt regardless of the typed amount; any other method
// with a shortfall requires a customer to carry the debt.
func (f *Flow) Advance() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateIdle || f.state == StateCompleted {
		return f.state, apperr.New(apperr.CodeValidation, "no checkout in progress")
	}

	if f.payment.Method() == domain.PaymentTransfer {
		if f.transfer == nil {
			f.state = StateAwaitingTransferInfo
			return f.state, nil
		}
		f.state = StateReadyToPersist
		return f.state, nil
	}

	if f.payment.Debt().IsPositive() {
		if err := f.gate.Check(permissions.CanEditCustomers); err != nil {
			return f.state, err
		}
		if f.customerID == nil {
			f.state = StateAwaitingCustomerInfo
			return f.state, nil
		}
	}
	f.state = StateReadyToPersist
	return f.state, nil
}

// SubmitTransferInfo validates the holder and bank fields and closes the
// transfer sub-form.
func (f *Flow) SubmitTransferInfo(form TransferForm) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateAwaitingTransferInfo {
		return apperr.New(apperr.CodeValidation, "no transfer form is open")
	}
	form.Titular = strings.TrimSpace(form.Titular)
	form.Banco = strings.TrimSpace(form.Banco)
	if err := f.validate.Struct(form); err != nil {
		return apperr.Wrap(apperr.CodeValidation, err, "account holder and bank are required")
	}
	f.transfer = &domain.TransferInfo{Titular: form.Titular, Banco: form.Banco}
	f.state = StateReadyToPersist
	return nil
}

// SubmitCustomerInfo validates the form locally, then resolves the customer
// by RUT against the backend, creating one when the RUT is unknown or absent.
func (f *Flow) SubmitCustomerInfo(ctx context.Context, form CustomerForm) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateAwaitingCustomerInfo {
		return apperr.New(apperr.CodeValidation, "no customer form is open")
	}
	form.Rut = strings.TrimSpace(form.Rut)
	form.Nombre = strings.TrimSpace(form.Nombre)
	form.Telefono = strings.TrimSpace(form.Telefono)
	if err := f.validate.Struct(form); err != nil {
		return apperr.Wrap(apperr.CodeValidation, err, "customer name and phone are required")
	}

	if form.Rut != "" {
		existing, err := f.backend.CustomerByRUT(ctx, form.Rut)
		if err == nil {
			f.customerID = &existing.ID
			f.state = StateReadyToPersist
			return nil
		}
		if apperr.CodeOf(err) != apperr.CodeNotFound {
			return err
		}
	}

	created, err := f.backend.CreateCustomer(ctx, domain.Customer{
		Rut:      form.Rut,
		Nombre:   form.Nombre,
		Telefono: form.Telefono,
	})
	if err != nil {
		return err
	}
	f.customerID = &created.ID
	f.state = StateReadyToPersist
	return nil
}

// LookupCustomer resolves a RUT without committing it to the flow, feeding
// the form's prefill when the customer already exists.
func (f *Flow) LookupCustomer(ctx context.Context, rut string) (domain.Customer, error) {
	if err := f.gate.Check(permissions.CanViewCustomers); err != nil {
		return domain.Customer{}, err
	}
	return f.backend.CustomerByRUT(ctx, strings.TrimSpace(rut))
}

// Finalize persists the sale. It is single-flight: a second call while one is
// in progress is rejected rather than queued. On failure the flow state is
// preserved so the same attempt, same idempotency key, can be retried.
func (f *Flow) Finalize(ctx context.Context) (Summary, error) {
	f.mu.Lock()
	if f.state != StateReadyToPersist {
		f.mu.Unlock()
		return Summary{}, apperr.New(apperr.CodeValidation, "checkout is not ready to finalize")
	}
	if f.inFlight {
		f.mu.Unlock()
		return Summary{}, apperr.New(apperr.CodeValidation, "a submission is already in progress")
	}
	if err := f.gate.Check(permissions.CanCreateSales); err != nil {
		f.mu.Unlock()
		return Summary{}, err
	}
	f.inFlight = true
	record := f.buildRecord()
	f.mu.Unlock()

	resp, err := f.backend.CreateSale(ctx, record)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if err != nil {
		f.log.Warn().Err(err).Str("idempotency_key", record.IdempotencyKey).Msg("sale submission failed")
		return Summary{}, err
	}

	summary := Summary{
		SaleID:     resp.ID,
		Total:      record.Total,
		Recibido:   record.Recibido,
		Cambio:     record.Cambio,
		Deuda:      record.Deuda,
		MetodoPago: record.MetodoPago,
		Ganancia:   f.cart.TotalMargin(),
		ClienteID:  record.ClienteID,
	}
	f.summary = &summary
	f.state = StateCompleted
	f.log.Info().Int64("sale_id", resp.ID).Str("metodo_pago", record.MetodoPago).Msg("sale recorded")
	return summary, nil
}

// buildRecord assembles the wire payload. Callers hold f.mu.
func (f *Flow) buildRecord() domain.SaleRecord {
	total := f.cart.Total()
	items := f.cart.Items()

	record := domain.SaleRecord{
		IdempotencyKey: f.idempotencyKey,
		Total:          total,
		MetodoPago:     f.payment.Method(),
		UserID:         f.userID,
		Deuda:          decimal.Zero,
		Items:          make([]domain.SaleItem, 0, len(items)),
	}

	record.Recibido = f.payment.Received()
	record.Cambio = f.payment.Change()
	if f.payment.Method() == domain.PaymentTransfer {
		// A transfer carries the typed figures but never leaves debt.
		record.Transfer = f.transfer
	} else if debt := f.payment.Debt(); debt.IsPositive() {
		record.Deuda = debt
		record.ClienteID = f.customerID
	}

	for _, item := range items {
		record.Items = append(record.Items, domain.SaleItem{
			ProductoID: item.ProductID,
			Cantidad:   item.Quantity,
			Precio:     item.UnitPrice,
			Ganancia:   item.Margin(),
		})
	}
	return record
}

// Summary returns the persisted sale's figures while the flow sits in the
// completed state.
func (f *Flow) Summary() (Summary, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.summary == nil {
		return Summary{}, false
	}
	return *f.summary, true
}

// Acknowledge dismisses the completed-sale summary and resets the terminal
// for the next customer: cart emptied, payment cleared, fresh key next time.
func (f *Flow) Acknowledge() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateCompleted {
		return
	}
	f.cart.Clear()
	f.reset()
}

// Abandon cancels an unfinished checkout but keeps the cart intact.
func (f *Flow) Abandon() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateCompleted {
		return
	}
	f.reset()
}

func (f *Flow) reset() {
	f.payment.Reset()
	f.idempotencyKey = ""
	f.transfer = nil
	f.customerID = nil
	f.summary = nil
	f.state = StateIdle
}
