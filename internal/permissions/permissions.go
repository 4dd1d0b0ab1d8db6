// Package permissions is the single capability-resolution service: one place
// turns a role plus optional per-employee overrides into a CapabilitySet, and
// one gate checks it before every guarded action.
package permissions

import (
	"puntoventa/terminal/internal/apperr"
	"puntoventa/terminal/internal/domain"
)

const (
	CanViewProducts   = "can_view_products"
	CanEditProducts   = "can_edit_products"
	CanDeleteProducts = "can_delete_products"
	CanCreateProducts = "can_create_products"
	CanViewSales      = "can_view_sales"
	CanCreateSales    = "can_create_sales"
	CanViewCustomers  = "can_view_customers"
	CanEditCustomers  = "can_edit_customers"
	CanViewReports    = "can_view_reports"
	CanManageStock    = "can_manage_stock"
)

// All enumerates every known capability, in the order the admin screen
// presents them.
var All = []string{
	CanViewProducts,
	CanEditProducts,
	CanDeleteProducts,
	CanCreateProducts,
	CanViewSales,
	CanCreateSales,
	CanViewCustomers,
	CanEditCustomers,
	CanViewReports,
	CanManageStock,
}

type CapabilitySet map[string]bool

// Resolve computes the effective capability set for a role. Admin holds every
// capability regardless of overrides. Other roles start from the seller
// defaults; overrides fetched from the backend replace the defaults wholesale
// for the capabilities they name.
func Resolve(rol string, overrides map[string]bool) CapabilitySet {
	set := make(CapabilitySet, len(All))

	if rol == domain.RolAdmin {
		for _, capability := range All {
			set[capability] = true
		}
		return set
	}

	for _, capability := range All {
		set[capability] = false
	}
	set[CanViewProducts] = true
	set[CanViewSales] = true
	set[CanCreateSales] = true
	set[CanViewCustomers] = true

	for capability, allowed := range overrides {
		set[capability] = allowed
	}
	return set
}

// Gate couples a resolved set with the role it was resolved for, so denials
// can name both.
type Gate struct {
	rol string
	set CapabilitySet
}

func NewGate(rol string, set CapabilitySet) *Gate {
	return &Gate{rol: rol, set: set}
}

func (g *Gate) Has(capability string) bool {
	if g == nil {
		return false
	}
	if g.rol == domain.RolAdmin {
		return true
	}
	return g.set[capability]
}

// Check returns nil when the capability is held, otherwise a structured
// permission denial. Callers abort the action entirely on denial; nothing
// partial may have happened before the check.
func (g *Gate) Check(capability string) error {
	if g.Has(capability) {
		return nil
	}
	rol := ""
	if g != nil {
		rol = g.rol
	}
	return apperr.New(apperr.CodePermission, "missing capability").WithDetails(apperr.PermissionDetails{
		Capability: capability,
		Rol:        rol,
	})
}

func (g *Gate) Rol() string {
	if g == nil {
		return ""
	}
	return g.rol
}
