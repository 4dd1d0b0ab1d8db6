package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"puntoventa/terminal/internal/apperr"
	"puntoventa/terminal/internal/backend"
	"puntoventa/terminal/internal/cart"
	"puntoventa/terminal/internal/checkout"
	"puntoventa/terminal/internal/config"
	"puntoventa/terminal/internal/debounce"
	"puntoventa/terminal/internal/domain"
	"puntoventa/terminal/internal/drafts"
	"puntoventa/terminal/internal/permissions"
	"puntoventa/terminal/internal/report"
	"puntoventa/terminal/internal/screens"
	"puntoventa/terminal/internal/session"
)

// app wires the screens behind a line-oriented prompt: one command per line,
// Spanish verbs matching what the cashier sees on the buttons.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	client   *backend.Client
	sessions *session.Manager
	drafts   drafts.Cache
	searcher *debounce.Debouncer

	user      domain.User
	gate      *permissions.Gate
	cart      *cart.Cart
	flow      *checkout.Flow
	stock     *screens.Stock
	employees *screens.Employees
	sales     *screens.Sales

	weigh     *cart.WeighEntry
	needLogin bool
	out       io.Writer
}

func newApp(cfg config.Config, log zerolog.Logger, client *backend.Client, sessions *session.Manager, draftCache drafts.Cache) *app {
	return &app{
		cfg:      cfg,
		log:      log,
		client:   client,
		sessions: sessions,
		drafts:   draftCache,
		searcher: debounce.New(cfg.DebounceInterval()),
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format+"\n", args...)
}

func (a *app) run(ctx context.Context, in io.Reader, out io.Writer) error {
	a.out = out
	reader := bufio.NewScanner(in)

	a.sessions.OnSignOut(func() { a.needLogin = true })

	if err := a.ensureSession(ctx, reader); err != nil {
		return err
	}
	a.restoreDraft(ctx)

	a.printf("terminal %s listo; escriba 'ayuda' para ver los comandos", a.cfg.TerminalID)
	for {
		select {
		case <-ctx.Done():
			a.saveDraft(context.Background())
			return nil
		default:
		}

		if a.needLogin {
			a.printf("la sesion expiro, vuelva a ingresar")
			if err := a.ensureSession(ctx, reader); err != nil {
				return err
			}
		}

		fmt.Fprint(a.out, "> ")
		if !reader.Scan() {
			a.saveDraft(context.Background())
			return reader.Err()
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		if line == "salir" {
			a.saveDraft(context.Background())
			return nil
		}
		a.dispatch(ctx, line)
	}
}

// ensureSession resumes a stored token or logs in, then resolves the
// operator's capabilities and rebuilds everything gated on them.
func (a *app) ensureSession(ctx context.Context, reader *bufio.Scanner) error {
	a.needLogin = false

	if user, ok := a.sessions.Current(); ok {
		a.user = user
		a.log.Info().Str("username", user.Username).Str("rol", user.Rol).Msg("session resumed")
	} else {
		if err := a.login(ctx, reader); err != nil {
			return err
		}
	}

	a.gate = permissions.NewGate(a.user.Rol, a.resolveCapabilities(ctx))
	a.cart = cart.New(a.client, a.gate)
	a.flow = checkout.NewFlow(checkout.FlowOptions{
		Backend: a.client,
		Cart:    a.cart,
		Gate:    a.gate,
		UserID:  a.user.ID,
		Logger:  a.log,
	})
	a.stock = screens.NewStock(a.client, a.gate, a.log)
	a.employees = screens.NewEmployees(a.client, a.gate, a.user.ID, a.log)
	a.sales = screens.NewSales(a.client, a.gate, a.log)
	return nil
}

func (a *app) login(ctx context.Context, reader *bufio.Scanner) error {
	username, password := a.cfg.Username, a.cfg.Password
	for {
		if username == "" || password == "" {
			fmt.Fprint(a.out, "usuario: ")
			if !reader.Scan() {
				return fmt.Errorf("login aborted: %w", io.EOF)
			}
			username = strings.TrimSpace(reader.Text())
			fmt.Fprint(a.out, "clave: ")
			if !reader.Scan() {
				return fmt.Errorf("login aborted: %w", io.EOF)
			}
			password = strings.TrimSpace(reader.Text())
		}

		resp, err := a.client.Login(ctx, domain.LoginRequest{Username: username, Password: password})
		if err != nil {
			a.printf("login fallido: %s", userMessage(err))
			username, password = "", ""
			if apperr.CodeOf(err) == apperr.CodeTransport {
				return err
			}
			continue
		}
		user, err := a.sessions.SignIn(resp.Token)
		if err != nil {
			return err
		}
		a.user = user
		a.log.Info().Str("username", user.Username).Str("rol", user.Rol).Msg("signed in")
		return nil
	}
}

// resolveCapabilities layers backend overrides over the role defaults. A
// missing override record, or any fetch failure, falls back to the defaults.
func (a *app) resolveCapabilities(ctx context.Context) permissions.CapabilitySet {
	resp, err := a.client.EmployeePermissions(ctx, a.user.ID)
	if err != nil {
		if apperr.CodeOf(err) != apperr.CodeNotFound {
			a.log.Warn().Err(err).Msg("cannot fetch permission overrides, using role defaults")
		}
		return permissions.Resolve(a.user.Rol, nil)
	}
	return permissions.Resolve(a.user.Rol, resp.Permissions)
}

func (a *app) restoreDraft(ctx context.Context) {
	draft, found, err := a.drafts.Load(ctx, a.cfg.TerminalID)
	if err != nil {
		a.log.Warn().Err(err).Msg("cannot load draft")
		return
	}
	if !found || draft.Empty() {
		return
	}
	a.cart.Restore(draft.Items)
	a.printf("borrador restaurado: %d items, total %s", a.cart.Len(), a.cart.Total())
}

func (a *app) saveDraft(ctx context.Context) {
	if a.cart == nil || a.cart.Len() == 0 {
		if err := a.drafts.Discard(ctx, a.cfg.TerminalID); err != nil {
			a.log.Warn().Err(err).Msg("cannot discard draft")
		}
		return
	}
	draft := drafts.Draft{
		Items:         a.cart.Items(),
		Method:        a.flow.Payment().Method(),
		ReceivedInput: a.flow.Payment().ReceivedInput(),
		SavedAt:       time.Now(),
	}
	if err := a.drafts.Save(ctx, a.cfg.TerminalID, draft); err != nil {
		a.log.Warn().Err(err).Msg("cannot save draft")
		return
	}
	a.log.Debug().Int("items", len(draft.Items)).Msg("draft saved")
}

func (a *app) dispatch(ctx context.Context, line string) {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch verb {
	case "ayuda":
		a.help()
	case "escanear":
		err = a.scan(ctx, rest)
	case "buscar":
		a.search(ctx, rest)
	case "pesar":
		err = a.weighSubmit(rest)
	case "cancelar-peso":
		a.weigh.Cancel()
		a.weigh = nil
	case "carrito":
		a.showCart()
	case "mas":
		err = a.adjust(rest, a.cart.Increment)
	case "menos":
		err = a.adjust(rest, a.cart.Decrement)
	case "quitar":
		err = a.adjust(rest, a.cart.Remove)
	case "cobrar":
		err = a.beginCheckout(rest)
	case "recibido":
		a.flow.SetReceived(rest)
		a.printf("cambio: %s  deuda: %s", a.flow.Payment().Change(), a.flow.Payment().Debt())
	case "continuar":
		err = a.advance()
	case "transferencia":
		err = a.transferInfo(rest)
	case "cliente":
		err = a.customerInfo(ctx, rest)
	case "rut":
		a.searchCustomer(ctx, rest)
	case "confirmar":
		err = a.finalize(ctx)
	case "ok":
		a.flow.Acknowledge()
		a.saveDraft(ctx)
	case "cancelar":
		a.flow.Abandon()
		a.printf("cobro cancelado, el carrito se mantiene")
	case "productos":
		err = a.listProducts(ctx)
	case "categorias":
		err = a.listCategories(ctx)
	case "producto":
		err = a.saveProduct(ctx, rest)
	case "ingreso":
		err = a.stageIntake(rest)
	case "finalizar-ingreso":
		err = a.finalizeIntake(ctx)
	case "ventas":
		err = a.listSales(ctx)
	case "detalle":
		err = a.saleDetails(ctx, rest)
	case "deudores":
		err = a.listDebtors(ctx, rest)
	case "pagar":
		err = a.payDebt(ctx, rest)
	case "empleados":
		err = a.listEmployees(ctx)
	case "permisos":
		err = a.showPermissions(ctx, rest)
	case "reporte":
		err = a.runReport(ctx, rest)
	case "cerrar-sesion":
		a.saveDraft(ctx)
		a.sessions.SignOut()
	default:
		a.printf("comando desconocido %q, escriba 'ayuda'", verb)
	}

	if err != nil {
		a.printf("%s", userMessage(err))
		return
	}

	switch verb {
	case "escanear", "pesar", "mas", "menos", "quitar", "recibido", "cobrar":
		a.saveDraft(ctx)
	}
}

func (a *app) help() {
	a.printf(`venta:    escanear <sku> | buscar <sku> | pesar <gramos> | carrito | mas/menos/quitar <n>
cobro:    cobrar <Efectivo|Transferencia|Credito> | recibido <monto> | continuar
          transferencia <titular>;<banco> | rut <rut> | cliente <rut>;<nombre>;<telefono>
          confirmar | ok | cancelar
stock:    productos | categorias | producto <sku>;<nombre>;<precio>;<costo>;<stock>;<unidad>
          ingreso <mismos campos> | finalizar-ingreso
ventas:   ventas | detalle <id> | deudores [filtro] | pagar <venta> <monto>
admin:    empleados | permisos <id> | reporte <hoy|7dias|30dias>
sesion:   cerrar-sesion | salir`)
}

func (a *app) scan(ctx context.Context, sku string) error {
	if sku == "" {
		return apperr.New(apperr.CodeValidation, "uso: escanear <sku>")
	}
	entry, err := a.cart.Scan(ctx, sku)
	if err != nil {
		return err
	}
	if entry != nil {
		a.weigh = entry
		a.printf("%s se vende por peso, ingrese 'pesar <gramos>'", entry.Product().Name)
		return nil
	}
	a.showCart()
	return nil
}

// search coalesces rapid lookups so a barcode typed digit by digit fires one
// request, not one per keystroke.
func (a *app) search(ctx context.Context, sku string) {
	if sku == "" {
		return
	}
	a.searcher.Trigger(func() {
		product, err := a.client.ProductBySKU(ctx, sku)
		if err != nil {
			a.printf("%s", userMessage(err))
			return
		}
		a.printf("%s  %s  stock %s %s", product.SKU, product.Name, product.Stock, product.StockUnit)
	})
}

// searchCustomer coalesces rapid RUT lookups the same way search does for
// SKUs, prefilling the customer form when the RUT is already on file.
func (a *app) searchCustomer(ctx context.Context, rut string) {
	if rut == "" {
		return
	}
	a.searcher.Trigger(func() {
		customer, err := a.flow.LookupCustomer(ctx, rut)
		if err != nil {
			if apperr.CodeOf(err) == apperr.CodeNotFound {
				a.printf("rut %s sin registro, use 'cliente' para crearlo", rut)
				return
			}
			a.printf("%s", userMessage(err))
			return
		}
		a.printf("cliente: %s;%s;%s", customer.Rut, customer.Nombre, customer.Telefono)
	})
}

func (a *app) weighSubmit(grams string) error {
	if !a.weigh.Open() {
		return apperr.New(apperr.CodeValidation, "no hay producto esperando peso")
	}
	if err := a.weigh.Submit(grams); err != nil {
		return err
	}
	a.weigh = nil
	a.showCart()
	return nil
}

func (a *app) showCart() {
	items := a.cart.Items()
	if len(items) == 0 {
		a.printf("carrito vacio")
		return
	}
	for i, item := range items {
		a.printf("%2d. %-20s %8s x %s = %s", i+1, item.Name, item.Quantity, item.UnitPrice, item.Subtotal())
	}
	a.printf("total: %s", a.cart.Total())
}

func (a *app) adjust(arg string, op func(int) error) error {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return apperr.New(apperr.CodeValidation, "indique el numero de linea")
	}
	if err := op(n - 1); err != nil {
		return err
	}
	a.showCart()
	return nil
}

func (a *app) beginCheckout(method string) error {
	if err := a.flow.Begin(method); err != nil {
		return err
	}
	a.printf("cobrando %s, total %s", method, a.cart.Total())
	if method != domain.PaymentTransfer {
		a.printf("ingrese 'recibido <monto>' y luego 'continuar'")
	} else {
		a.printf("ingrese 'continuar' para los datos de la transferencia")
	}
	return nil
}

func (a *app) advance() error {
	state, err := a.flow.Advance()
	if err != nil {
		return err
	}
	switch state {
	case checkout.StateAwaitingTransferInfo:
		a.printf("ingrese 'transferencia <titular>;<banco>'")
	case checkout.StateAwaitingCustomerInfo:
		a.printf("hay deuda de %s, ingrese 'cliente <rut>;<nombre>;<telefono>'", a.flow.Payment().Debt())
	case checkout.StateReadyToPersist:
		a.printf("listo, ingrese 'confirmar'")
	}
	return nil
}

func (a *app) transferInfo(rest string) error {
	parts := strings.SplitN(rest, ";", 2)
	if len(parts) != 2 {
		return apperr.New(apperr.CodeValidation, "uso: transferencia <titular>;<banco>")
	}
	if err := a.flow.SubmitTransferInfo(checkout.TransferForm{Titular: parts[0], Banco: parts[1]}); err != nil {
		return err
	}
	a.printf("listo, ingrese 'confirmar'")
	return nil
}

func (a *app) customerInfo(ctx context.Context, rest string) error {
	parts := strings.SplitN(rest, ";", 3)
	if len(parts) != 3 {
		return apperr.New(apperr.CodeValidation, "uso: cliente <rut>;<nombre>;<telefono> (rut puede ir vacio)")
	}
	form := checkout.CustomerForm{Rut: parts[0], Nombre: parts[1], Telefono: parts[2]}
	if err := a.flow.SubmitCustomerInfo(ctx, form); err != nil {
		return err
	}
	a.printf("cliente registrado, ingrese 'confirmar'")
	return nil
}

func (a *app) finalize(ctx context.Context) error {
	summary, err := a.flow.Finalize(ctx)
	if err != nil {
		return err
	}
	a.printf("venta #%d registrada (%s)", summary.SaleID, summary.MetodoPago)
	a.printf("total %s  recibido %s  cambio %s  deuda %s", summary.Total, summary.Recibido, summary.Cambio, summary.Deuda)
	a.printf("ingrese 'ok' para la siguiente venta")
	return nil
}

func (a *app) listProducts(ctx context.Context) error {
	products, err := a.stock.Products(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		a.printf("%-12s %-24s precio %8s stock %8s %s", p.SKU, p.Name, p.Price, p.Stock, p.StockUnit)
	}
	return nil
}

func (a *app) listCategories(ctx context.Context) error {
	categories, err := a.stock.Categories(ctx)
	if err != nil {
		return err
	}
	for _, c := range categories {
		a.printf("%3d  %s", c.ID, c.Name)
	}
	return nil
}

func parseUpsert(rest string) (domain.ProductUpsertRequest, error) {
	parts := strings.Split(rest, ";")
	if len(parts) != 6 {
		return domain.ProductUpsertRequest{}, apperr.New(apperr.CodeValidation,
			"uso: <sku>;<nombre>;<precio>;<costo>;<stock>;<unidad>")
	}
	price, err1 := decimal.NewFromString(strings.TrimSpace(parts[2]))
	cost, err2 := decimal.NewFromString(strings.TrimSpace(parts[3]))
	stock, err3 := decimal.NewFromString(strings.TrimSpace(parts[4]))
	if err1 != nil || err2 != nil || err3 != nil {
		return domain.ProductUpsertRequest{}, apperr.New(apperr.CodeValidation, "precio, costo y stock deben ser numeros")
	}
	return domain.ProductUpsertRequest{
		SKU:           parts[0],
		Name:          parts[1],
		Price:         price,
		PurchasePrice: cost,
		Stock:         stock,
		StockUnit:     strings.TrimSpace(parts[5]),
	}, nil
}

func (a *app) saveProduct(ctx context.Context, rest string) error {
	req, err := parseUpsert(rest)
	if err != nil {
		return err
	}
	products, err := a.stock.SaveProduct(ctx, req)
	if err != nil {
		return err
	}
	a.printf("guardado, %d productos en catalogo", len(products))
	return nil
}

func (a *app) stageIntake(rest string) error {
	req, err := parseUpsert(rest)
	if err != nil {
		return err
	}
	if err := a.stock.Stage(req); err != nil {
		return err
	}
	a.printf("%d items en el ingreso pendiente", len(a.stock.Staged()))
	return nil
}

func (a *app) finalizeIntake(ctx context.Context) error {
	products, err := a.stock.Finalize(ctx)
	if err != nil {
		return err
	}
	a.printf("ingreso finalizado, %d productos en catalogo", len(products))
	return nil
}

func (a *app) listSales(ctx context.Context) error {
	sales, err := a.sales.History(ctx)
	if err != nil {
		return err
	}
	for _, s := range sales {
		a.printf("#%-5d %s  %-13s total %8s deuda %8s", s.ID, s.Fecha.Format("2006-01-02 15:04"), s.MetodoPago, s.Total, s.Deuda)
	}
	return nil
}

func (a *app) saleDetails(ctx context.Context, rest string) error {
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return apperr.New(apperr.CodeValidation, "uso: detalle <id>")
	}
	details, err := a.sales.Details(ctx, id)
	if err != nil {
		return err
	}
	for _, d := range details {
		a.printf("%-24s %8s x %s", d.Nombre, d.Cantidad, d.Precio)
	}
	return nil
}

func (a *app) listDebtors(ctx context.Context, filtro string) error {
	debtors, err := a.sales.Debtors(ctx, filtro)
	if err != nil {
		return err
	}
	for _, c := range debtors {
		deuda := decimal.Zero
		if c.Deuda != nil {
			deuda = *c.Deuda
		}
		a.printf("%-14s %-24s fono %-14s debe %s", c.Rut, c.Nombre, c.Telefono, deuda)
	}
	return nil
}

func (a *app) payDebt(ctx context.Context, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return apperr.New(apperr.CodeValidation, "uso: pagar <venta> <monto>")
	}
	saleID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return apperr.New(apperr.CodeValidation, "uso: pagar <venta> <monto>")
	}

	history, err := a.sales.History(ctx)
	if err != nil {
		return err
	}
	var owed decimal.Decimal
	found := false
	for _, s := range history {
		if s.ID == saleID {
			owed = s.Deuda
			found = true
			break
		}
	}
	if !found {
		return apperr.New(apperr.CodeNotFound, fmt.Sprintf("venta %d no encontrada", saleID))
	}

	resp, err := a.sales.PayDebt(ctx, saleID, owed, fields[1])
	if err != nil {
		return err
	}
	a.printf("pago registrado, deuda restante %s", resp.DeudaActualizada)
	return nil
}

func (a *app) listEmployees(ctx context.Context) error {
	employees, err := a.employees.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range employees {
		a.printf("%3d  %-16s %-24s %s", e.ID, e.Username, e.Nombre, e.Rol)
	}
	return nil
}

func (a *app) showPermissions(ctx context.Context, rest string) error {
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return apperr.New(apperr.CodeValidation, "uso: permisos <id>")
	}
	employees, err := a.employees.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range employees {
		if e.ID != id {
			continue
		}
		set, err := a.employees.Permissions(ctx, e)
		if err != nil {
			return err
		}
		for _, capability := range permissions.All {
			mark := " "
			if set[capability] {
				mark = "x"
			}
			a.printf("[%s] %s", mark, capability)
		}
		return nil
	}
	return apperr.New(apperr.CodeNotFound, fmt.Sprintf("empleado %d no encontrado", id))
}

func (a *app) runReport(ctx context.Context, rest string) error {
	if err := a.gate.Check(permissions.CanViewReports); err != nil {
		return err
	}
	window, err := report.ParseWindow(rest)
	if err != nil {
		return err
	}

	history, err := a.sales.History(ctx)
	if err != nil {
		return err
	}
	entries := make([]report.Entry, 0, len(history))
	for _, s := range history {
		entries = append(entries, report.Entry{Sale: s})
	}
	entries = report.Filter(entries, window, time.Now())

	// Details are fetched only for the sales inside the window.
	for i := range entries {
		details, err := a.sales.Details(ctx, entries[i].Sale.ID)
		if err != nil {
			return err
		}
		entries[i].Items = details
	}

	totals := report.Summarize(entries)
	a.printf("ventas: %d  total: %s  ganancia: %s", totals.Ventas, totals.TotalVenta, totals.Ganancia)
	for _, day := range report.DailySeries(entries) {
		a.printf("%s  ventas %3d  total %10s  ganancia %10s", day.Fecha, day.Ventas, day.TotalVenta, day.Ganancia)
	}
	a.printf("mas vendidos:")
	for _, rank := range report.TopProducts(entries, 5) {
		a.printf("  %-24s %8s unidades, ingresos %s", rank.Nombre, rank.Cantidad, rank.Ingresos)
	}
	return nil
}

// userMessage renders an error for the operator, adding the figures the
// structured details carry.
func userMessage(err error) string {
	typed := apperr.As(err)
	if typed == nil {
		return err.Error()
	}
	msg := typed.Message()
	switch details := typed.Details().(type) {
	case apperr.StockDetails:
		msg = fmt.Sprintf("%s (pedido %s, disponible %s)", msg, details.Requested, details.Available)
	case apperr.PermissionDetails:
		msg = fmt.Sprintf("%s (requiere %s, rol %s)", msg, details.Capability, details.Rol)
	}
	if typed.Code().Retryable() {
		msg += ", puede reintentar"
	}
	return msg
}
