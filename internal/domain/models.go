package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The backend speaks plain JSON numbers for money and quantities.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	RolAdmin    = "admin"
	RolVendedor = "vendedor"
)

const (
	PaymentCash     = "Efectivo"
	PaymentTransfer = "Transferencia"
	PaymentCredit   = "Credito"
)

const (
	StockUnitCount  = "unidad"
	StockUnitWeight = "kg"
)

// User is the identity decoded from the bearer token payload.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Rol      string `json:"rol"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Product is the backend's product record as returned by the by-SKU lookup.
// Stock reflects the backend's count at lookup time; the cart refreshes it
// on every scan.
type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Stock         decimal.Decimal `json:"stock"`
	StockUnit     string          `json:"stock_unit"`
	CategoriaID   int64           `json:"categoria_id"`
}

// WeightBased reports whether the product is sold by mass (fractional kg)
// rather than by discrete count.
func (p Product) WeightBased() bool {
	switch strings.ToLower(p.StockUnit) {
	case "kg", "kilos":
		return true
	}
	return false
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
}

type ProductUpsertRequest struct {
	SKU           string          `json:"sku" validate:"required"`
	Name          string          `json:"name" validate:"required"`
	Price         decimal.Decimal `json:"price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Stock         decimal.Decimal `json:"stock"`
	StockUnit     string          `json:"stock_unit" validate:"required"`
	CategoriaID   int64           `json:"categoria_id"`
}

type StockFinalizeRequest struct {
	Items []ProductUpsertRequest `json:"items" validate:"required,min=1,dive"`
}

// Customer is materialized only when a sale leaves debt behind. Rut is the
// optional lookup key; ID is backend-assigned once persisted.
type Customer struct {
	ID       int64            `json:"id,omitempty"`
	Rut      string           `json:"rut,omitempty"`
	Nombre   string           `json:"nombre"`
	Telefono string           `json:"telefono"`
	Deuda    *decimal.Decimal `json:"deuda,omitempty"`
}

// TransferInfo is required before a transfer sale can be finalized.
type TransferInfo struct {
	Titular string `json:"titular"`
	Banco   string `json:"banco"`
}

// SaleItem is one cart line expanded for persistence. Ganancia is the margin,
// (precio − purchase cost) × cantidad, a reporting figure never shown to the
// customer.
type SaleItem struct {
	ProductoID int64           `json:"producto_id"`
	Cantidad   decimal.Decimal `json:"cantidad"`
	Precio     decimal.Decimal `json:"precio"`
	Ganancia   decimal.Decimal `json:"ganancia"`
}

// SaleRecord is the payload of POST /sales. IdempotencyKey is generated
// client-side per checkout attempt and reused across retries so the backend
// can de-duplicate an acknowledged-but-unconfirmed submission.
type SaleRecord struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Total          decimal.Decimal `json:"total"`
	Recibido       decimal.Decimal `json:"recibido"`
	Cambio         decimal.Decimal `json:"cambio"`
	MetodoPago     string          `json:"metodo_pago"`
	ClienteID      *int64          `json:"cliente_id"`
	Deuda          decimal.Decimal `json:"deuda"`
	UserID         int64           `json:"user_id"`
	Transfer       *TransferInfo   `json:"transfer"`
	Items          []SaleItem      `json:"items"`
}

type SaleCreateResponse struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id"`
}

// Sale is one row of the sales history collection.
type Sale struct {
	ID         int64           `json:"id"`
	Fecha      time.Time       `json:"fecha"`
	Total      decimal.Decimal `json:"total"`
	Recibido   decimal.Decimal `json:"recibido"`
	Cambio     decimal.Decimal `json:"cambio"`
	MetodoPago string          `json:"metodo_pago"`
	Deuda      decimal.Decimal `json:"deuda"`
	ClienteID  *int64          `json:"cliente_id"`
	UserID     int64           `json:"user_id"`
}

// SaleDetail is one line of GET /sales/:id/detalles.
type SaleDetail struct {
	ProductoID int64           `json:"producto_id"`
	Nombre     string          `json:"nombre"`
	Cantidad   decimal.Decimal `json:"cantidad"`
	Precio     decimal.Decimal `json:"precio"`
	Ganancia   decimal.Decimal `json:"ganancia"`
}

type PayDebtRequest struct {
	Monto decimal.Decimal `json:"monto"`
}

type PayDebtResponse struct {
	DeudaActualizada decimal.Decimal `json:"deuda_actualizada"`
	PagoRegistrado   bool            `json:"pago_registrado"`
}

// Employee is a backend user account managed from the admin screen.
type Employee struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Nombre   string `json:"nombre"`
	Rol      string `json:"rol"`
}

type EmployeeCreateRequest struct {
	Username        string `json:"username" validate:"required,min=4"`
	Nombre          string `json:"nombre" validate:"required"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"-" validate:"eqfield=Password"`
	Rol             string `json:"rol" validate:"required,oneof=admin vendedor"`
}

// EmployeeUpdateRequest leaves the password unchanged when empty.
type EmployeeUpdateRequest struct {
	Username        string `json:"username" validate:"required,min=4"`
	Nombre          string `json:"nombre" validate:"required"`
	Password        string `json:"password,omitempty" validate:"omitempty,min=6"`
	ConfirmPassword string `json:"-" validate:"eqfield=Password"`
	Rol             string `json:"rol" validate:"required,oneof=admin vendedor"`
}

// PermissionsResponse wraps the per-employee capability overrides; an absent
// record means the role defaults apply.
type PermissionsResponse struct {
	Permissions map[string]bool `json:"permissions"`
}

type PermissionsSaveRequest struct {
	EmployeeID  int64           `json:"employee_id"`
	Permissions map[string]bool `json:"permissions"`
}
