package checkout

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"puntoventa/terminal/internal/apperr"
	"puntoventa/terminal/internal/cart"
	"puntoventa/terminal/internal/domain"
	"puntoventa/terminal/internal/permissions"
)

type fakeBackend struct {
	customersByRut map[string]domain.Customer
	created        []domain.Customer
	sales          []domain.SaleRecord
	saleErr        error
	lookups        int
	nextCustomerID int64
	nextSaleID     int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		customersByRut: map[string]domain.Customer{},
		nextCustomerID: 100,
		nextSaleID:     500,
	}
}

func (b *fakeBackend) CreateSale(_ context.Context, sale domain.SaleRecord) (domain.SaleCreateResponse, error) {
	b.sales = append(b.sales, sale)
	if b.saleErr != nil {
		err := b.saleErr
		b.saleErr = nil
		return domain.SaleCreateResponse{}, err
	}
	b.nextSaleID++
	return domain.SaleCreateResponse{Success: true, ID: b.nextSaleID}, nil
}

func (b *fakeBackend) CustomerByRUT(_ context.Context, rut string) (domain.Customer, error) {
	b.lookups++
	customer, ok := b.customersByRut[rut]
	if !ok {
		return domain.Customer{}, apperr.New(apperr.CodeNotFound, "customer not found")
	}
	return customer, nil
}

func (b *fakeBackend) CreateCustomer(_ context.Context, customer domain.Customer) (domain.Customer, error) {
	b.nextCustomerID++
	customer.ID = b.nextCustomerID
	b.created = append(b.created, customer)
	return customer, nil
}

func adminGate() *permissions.Gate {
	return permissions.NewGate(domain.RolAdmin, permissions.Resolve(domain.RolAdmin, nil))
}

func cartWith(lines ...cart.LineItem) *cart.Cart {
	c := cart.New(nil, adminGate())
	c.Restore(lines)
	return c
}

func unitLine(price int64, qty int64) cart.LineItem {
	return cart.LineItem{
		ProductID:      7,
		SKU:            "A1",
		Name:           "Producto A1",
		UnitPrice:      decimal.NewFromInt(price),
		PurchaseCost:   decimal.NewFromInt(price / 2),
		Quantity:       decimal.NewFromInt(qty),
		StockUnit:      domain.StockUnitCount,
		AvailableStock: decimal.NewFromInt(qty + 10),
	}
}

func newTestFlow(backend SaleBackend, c *cart.Cart, gate *permissions.Gate) *Flow {
	return NewFlow(FlowOptions{
		Backend: backend,
		Cart:    c,
		Gate:    gate,
		UserID:  42,
		Logger:  zerolog.Nop(),
	})
}

func TestPaymentArithmetic(t *testing.T) {
	total := decimal.NewFromInt(3000)

	cases := []struct {
		name   string
		input  string
		change string
		debt   string
	}{
		{"exact", "3000", "0", "0"},
		{"overpaid", "5000", "2000", "0"},
		{"underpaid", "2000", "-1000", "1000"},
		{"unparseable", "abc", "0", "0"},
		{"empty", "", "0", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPayment()
			p.SetReceived(tc.input, total)
			if got := p.Change(); got.String() != tc.change {
				t.Fatalf("change: got %s, want %s", got, tc.change)
			}
			if got := p.Debt(); got.String() != tc.debt {
				t.Fatalf("debt: got %s, want %s", got, tc.debt)
			}
			if p.Change().IsPositive() && p.Debt().IsPositive() {
				t.Fatalf("change and debt must be mutually exclusive")
			}
		})
	}
}

func TestBeginRejectsEmptyCart(t *testing.T) {
	flow := newTestFlow(newFakeBackend(), cartWith(), adminGate())
	if err := flow.Begin(domain.PaymentCash); apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if flow.State() != StateIdle {
		t.Fatalf("state must remain idle")
	}
}

func TestBeginRejectsUnknownMethod(t *testing.T) {
	flow := newTestFlow(newFakeBackend(), cartWith(unitLine(1000, 1)), adminGate())
	if err := flow.Begin("Cheque"); apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCashExactSettlesDirectly(t *testing.T) {
	backend := newFakeBackend()
	flow := newTestFlow(backend, cartWith(unitLine(1000, 2)), adminGate())

	if err := flow.Begin(domain.PaymentCash); err != nil {
		t.Fatalf("begin: %v", err)
	}
	flow.SetReceived("2000")
	state, err := flow.Advance()
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if state != StateReadyToPersist {
		t.Fatalf("expected ready state, got %s", state)
	}

	summary, err := flow.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if summary.SaleID == 0 {
		t.Fatalf("expected persisted sale id")
	}

	if len(backend.sales) != 1 {
		t.Fatalf("expected one sale, got %d", len(backend.sales))
	}
	record := backend.sales[0]
	if record.IdempotencyKey == "" {
		t.Fatalf("expected idempotency key on the record")
	}
	if !record.Total.Equal(decimal.NewFromInt(2000)) || !record.Cambio.IsZero() || !record.Deuda.IsZero() {
		t.Fatalf("unexpected figures: total=%s cambio=%s deuda=%s", record.Total, record.Cambio, record.Deuda)
	}
	if record.UserID != 42 {
		t.Fatalf("expected user id 42, got %d", record.UserID)
	}
	if len(record.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(record.Items))
	}
	// price 1000, cost 500, qty 2
	if !record.Items[0].Ganancia.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected per-item ganancia 1000, got %s", record.Items[0].Ganancia)
	}
}

func TestRetryReusesIdempotencyKey(t *testing.T) {
	backend := newFakeBackend()
	backend.saleErr = apperr.New(apperr.CodeTransport, "connection reset")
	flow := newTestFlow(backend, cartWith(unitLine(500, 1)), adminGate())

	if err := flow.Begin(domain.PaymentCash); err != nil {
		t.Fatalf("begin: %v", err)
	}
	flow.SetReceived("500")
	if _, err := flow.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}

	_, err := flow.Finalize(context.Background())
	if apperr.CodeOf(err) != apperr.CodeTransport {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if flow.State() != StateReadyToPersist {
		t.Fatalf("failed attempt must stay retryable, state=%s", flow.State())
	}

	if _, err := flow.Finalize(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(backend.sales) != 2 {
		t.Fatalf("expected two submissions, got %d", len(backend.sales))
	}
	if backend.sales[0].IdempotencyKey != backend.sales[1].IdempotencyKey {
		t.Fatalf("retry must reuse the idempotency key")
	}
}

func TestTransferRequiresHolderAndBank(t *testing.T) {
	backend := newFakeBackend()
	flow := newTestFlow(backend, cartWith(unitLine(5000, 1)), adminGate())

	if err := flow.Begin(domain.PaymentTransfer); err != nil {
		t.Fatalf("begin: %v", err)
	}
	flow.SetReceived("3000")
	state, err := flow.Advance()
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if state != StateAwaitingTransferInfo {
		t.Fatalf("expected transfer form, got %s", state)
	}

	if err := flow.SubmitTransferInfo(TransferForm{Titular: "  ", Banco: ""}); apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := flow.SubmitTransferInfo(TransferForm{Titular: "Maria Perez", Banco: "BancoEstado"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := flow.Finalize(context.Background()); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	record := backend.sales[0]
	if !record.Recibido.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("transfer must keep the typed received amount, got %s", record.Recibido)
	}
	if !record.Cambio.Equal(decimal.NewFromInt(-2000)) {
		t.Fatalf("transfer must keep the signed change, got %s", record.Cambio)
	}
	if !record.Deuda.IsZero() {
		t.Fatalf("transfer must never leave debt, got %s", record.Deuda)
	}
	if record.Transfer == nil || record.Transfer.Banco != "BancoEstado" {
		t.Fatalf("expected transfer info on the record: %+v", record.Transfer)
	}
}

func TestShortfallResolvesExistingCustomerByRut(t *testing.T) {
	backend := newFakeBackend()
	backend.customersByRut["11.111.111-1"] = domain.Customer{ID: 9, Rut: "11.111.111-1", Nombre: "Juan Soto"}
	flow := newTestFlow(backend, cartWith(unitLine(2000, 1)), adminGate())

	if err := flow.Begin(domain.PaymentCredit); err != nil {
		t.Fatalf("begin: %v", err)
	}
	flow.SetReceived("500")
	state, err := flow.Advance()
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if state != StateAwaitingCustomerInfo {
		t.Fatalf("expected customer form, got %s", state)
	}

	form := CustomerForm{Rut: "11.111.111-1", Nombre: "Juan Soto", Telefono: "+56911111111"}
	if err := flow.SubmitCustomerInfo(context.Background(), form); err != nil {
		t.Fatalf("submit customer: %v", err)
	}
	if len(backend.created) != 0 {
		t.Fatalf("existing customer must not be re-created")
	}

	if _, err := flow.Finalize(context.Background()); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	record := backend.sales[0]
	if record.ClienteID == nil || *record.ClienteID != 9 {
		t.Fatalf("expected cliente_id 9, got %v", record.ClienteID)
	}
	if !record.Deuda.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected deuda 1500, got %s", record.Deuda)
	}
	if !record.Cambio.Equal(decimal.NewFromInt(-1500)) {
		t.Fatalf("shortfall keeps its sign on the record, got %s", record.Cambio)
	}
}

func TestShortfallCreatesUnknownCustomer(t *testing.T) {
	backend := newFakeBackend()
	flow := newTestFlow(backend, cartWith(unitLine(1000, 1)), adminGate())

	if err := flow.Begin(domain.PaymentCash); err != nil {
		t.Fatalf("begin: %v", err)
	}
	flow.SetReceived("0")
	if _, err := flow.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}

	form := CustomerForm{Nombre: "Ana Rojas", Telefono: "+56922222222"}
	if err := flow.SubmitCustomerInfo(context.Background(), form); err != nil {
		t.Fatalf("submit customer: %v", err)
	}
	if len(backend.created) != 1 {
		t.Fatalf("expected one created customer, got %d", len(backend.created))
	}

	if _, err := flow.Finalize(context.Background()); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	record := backend.sales[0]
	if record.ClienteID == nil || *record.ClienteID != backend.created[0].ID {
		t.Fatalf("sale must reference the created customer")
	}
}

func TestCustomerFormRequiresNameAndPhone(t *testing.T) {
	backend := newFakeBackend()
	flow := newTestFlow(backend, cartWith(unitLine(1000, 1)), adminGate())

	if err := flow.Begin(domain.PaymentCash); err != nil {
		t.Fatalf("begin: %v", err)
	}
	flow.SetReceived("200")
	if _, err := flow.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}

	err := flow.SubmitCustomerInfo(context.Background(), CustomerForm{Nombre: "Sin Fono"})
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(backend.created) != 0 {
		t.Fatalf("invalid form must never reach the backend")
	}
}

func TestDebtPathDeniedWithoutEditCustomers(t *testing.T) {
	gate := permissions.NewGate(domain.RolVendedor, permissions.Resolve(domain.RolVendedor, nil))
	flow := newTestFlow(newFakeBackend(), cartWith(unitLine(1000, 1)), gate)

	if err := flow.Begin(domain.PaymentCash); err != nil {
		t.Fatalf("begin: %v", err)
	}
	flow.SetReceived("200")

	_, err := flow.Advance()
	typed := apperr.As(err)
	if typed == nil || typed.Code() != apperr.CodePermission {
		t.Fatalf("expected permission denial, got %v", err)
	}
	details, ok := typed.Details().(apperr.PermissionDetails)
	if !ok || details.Capability != permissions.CanEditCustomers {
		t.Fatalf("unexpected denial details: %#v", typed.Details())
	}
}

func TestLookupCustomerPrefillsExisting(t *testing.T) {
	backend := newFakeBackend()
	backend.customersByRut["11.111.111-1"] = domain.Customer{ID: 9, Rut: "11.111.111-1", Nombre: "Ana Soto", Telefono: "987654321"}
	flow := newTestFlow(backend, cartWith(unitLine(1000, 1)), adminGate())

	customer, err := flow.LookupCustomer(context.Background(), "  11.111.111-1  ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if customer.ID != 9 || customer.Nombre != "Ana Soto" {
		t.Fatalf("unexpected customer: %+v", customer)
	}
	if backend.lookups != 1 {
		t.Fatalf("expected a single lookup, got %d", backend.lookups)
	}
}

func TestLookupCustomerDeniedWithoutViewCustomers(t *testing.T) {
	backend := newFakeBackend()
	gate := permissions.NewGate(domain.RolVendedor, permissions.Resolve(domain.RolVendedor, map[string]bool{
		permissions.CanViewCustomers: false,
	}))
	flow := newTestFlow(backend, cartWith(unitLine(1000, 1)), gate)

	_, err := flow.LookupCustomer(context.Background(), "11.111.111-1")
	typed := apperr.As(err)
	if typed == nil || typed.Code() != apperr.CodePermission {
		t.Fatalf("expected permission denial, got %v", err)
	}
	details, ok := typed.Details().(apperr.PermissionDetails)
	if !ok || details.Capability != permissions.CanViewCustomers {
		t.Fatalf("unexpected denial details: %#v", typed.Details())
	}
	if backend.lookups != 0 {
		t.Fatalf("denied lookup must not reach the backend")
	}
}

func TestFinalizeDeniedWithoutCreateSales(t *testing.T) {
	backend := newFakeBackend()
	gate := permissions.NewGate(domain.RolVendedor, permissions.Resolve(domain.RolVendedor, map[string]bool{
		permissions.CanCreateSales: false,
	}))
	flow := newTestFlow(backend, cartWith(unitLine(1000, 1)), gate)

	if err := flow.Begin(domain.PaymentCash); err != nil {
		t.Fatalf("begin: %v", err)
	}
	flow.SetReceived("1000")
	if _, err := flow.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}

	_, err := flow.Finalize(context.Background())
	if apperr.CodeOf(err) != apperr.CodePermission {
		t.Fatalf("expected permission denial, got %v", err)
	}
	if len(backend.sales) != 0 {
		t.Fatalf("denied finalize must not reach the backend")
	}
}

func TestAcknowledgeClearsCartAndMintsFreshKey(t *testing.T) {
	backend := newFakeBackend()
	c := cartWith(unitLine(800, 1))
	flow := newTestFlow(backend, c, adminGate())

	if err := flow.Begin(domain.PaymentCash); err != nil {
		t.Fatalf("begin: %v", err)
	}
	flow.SetReceived("800")
	if _, err := flow.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := flow.Finalize(context.Background()); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, ok := flow.Summary(); !ok {
		t.Fatalf("expected a completed-sale summary")
	}

	flow.Acknowledge()
	if c.Len() != 0 {
		t.Fatalf("acknowledge must clear the cart")
	}
	if flow.State() != StateIdle {
		t.Fatalf("expected idle state, got %s", flow.State())
	}

	c.Restore([]cart.LineItem{unitLine(900, 1)})
	if err := flow.Begin(domain.PaymentCash); err != nil {
		t.Fatalf("second begin: %v", err)
	}
	flow.SetReceived("900")
	if _, err := flow.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := flow.Finalize(context.Background()); err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if backend.sales[0].IdempotencyKey == backend.sales[1].IdempotencyKey {
		t.Fatalf("a new checkout must mint a new idempotency key")
	}
}

func TestSwitchingMethodDropsTransferForm(t *testing.T) {
	backend := newFakeBackend()
	flow := newTestFlow(backend, cartWith(unitLine(1200, 1)), adminGate())

	if err := flow.Begin(domain.PaymentTransfer); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := flow.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := flow.SubmitTransferInfo(TransferForm{Titular: "Pedro", Banco: "Banco de Chile"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := flow.Begin(domain.PaymentCash); err != nil {
		t.Fatalf("switch method: %v", err)
	}
	flow.SetReceived("1200")
	if _, err := flow.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := flow.Finalize(context.Background()); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if backend.sales[0].Transfer != nil {
		t.Fatalf("cash sale must not carry stale transfer info")
	}
}
