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

// EmployeeBackend is the slice of the backend client the employees screen
// needs.
type EmployeeBackend interface {
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) error
	UpdateEmployee(ctx context.Context, id int64, req domain.EmployeeUpdateRequest) error
	DeleteEmployee(ctx context.Context, id int64) error
	EmployeePermissions(ctx context.Context, employeeID int64) (domain.PermissionsResponse, error)
	SavePermissions(ctx context.Context, req domain.PermissionsSaveRequest) error
}

// Employees is the account-administration screen. The whole surface is
// restricted to the admin role; sellers never see it.
type Employees struct {
	backend    EmployeeBackend
	gate       *permissions.Gate
	validate   *validator.Validate
	log        zerolog.Logger
	operatorID int64
}

func NewEmployees(backend EmployeeBackend, gate *permissions.Gate, operatorID int64, log zerolog.Logger) *Employees {
	return &Employees{
		backend:    backend,
		gate:       gate,
		validate:   validator.New(),
		log:        log.With().Str("screen", "employees").Logger(),
		operatorID: operatorID,
	}
}

func (e *Employees) requireAdmin() error {
	if e.gate.Rol() == domain.RolAdmin {
		return nil
	}
	return apperr.New(apperr.CodePermission, "employee administration is admin-only").
		WithDetails(apperr.PermissionDetails{Capability: "admin", Rol: e.gate.Rol()})
}

func (e *Employees) List(ctx context.Context) ([]domain.Employee, error) {
	if err := e.requireAdmin(); err != nil {
		return nil, err
	}
	return e.backend.ListEmployees(ctx)
}

// Create validates the new account, including the password confirmation,
// before it reaches the backend, then refetches the listing.
func (e *Employees) Create(ctx context.Context, req domain.EmployeeCreateRequest) ([]domain.Employee, error) {
	if err := e.requireAdmin(); err != nil {
		return nil, err
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Nombre = strings.TrimSpace(req.Nombre)
	if err := e.validate.Struct(req); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, "check the account fields; passwords must match")
	}
	if err := e.backend.CreateEmployee(ctx, req); err != nil {
		return nil, err
	}
	e.log.Info().Str("username", req.Username).Str("rol", req.Rol).Msg("employee created")
	return e.backend.ListEmployees(ctx)
}

// Update persists the edit; an empty password leaves the stored one intact.
func (e *Employees) Update(ctx context.Context, id int64, req domain.EmployeeUpdateRequest) ([]domain.Employee, error) {
	if err := e.requireAdmin(); err != nil {
		return nil, err
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Nombre = strings.TrimSpace(req.Nombre)
	if err := e.validate.Struct(req); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, "check the account fields; passwords must match")
	}
	if err := e.backend.UpdateEmployee(ctx, id, req); err != nil {
		return nil, err
	}
	return e.backend.ListEmployees(ctx)
}

// Delete removes an account. Deleting the signed-in operator is rejected so a
// terminal cannot lock itself out.
func (e *Employees) Delete(ctx context.Context, id int64) ([]domain.Employee, error) {
	if err := e.requireAdmin(); err != nil {
		return nil, err
	}
	if id == e.operatorID {
		return nil, apperr.New(apperr.CodeValidation, "cannot delete the signed-in account")
	}
	if err := e.backend.DeleteEmployee(ctx, id); err != nil {
		return nil, err
	}
	e.log.Info().Int64("employee_id", id).Msg("employee deleted")
	return e.backend.ListEmployees(ctx)
}

// Permissions returns the employee's effective capability set: the stored
// overrides layered over their role defaults, so the editor shows every
// checkbox in its true position.
func (e *Employees) Permissions(ctx context.Context, employee domain.Employee) (permissions.CapabilitySet, error) {
	if err := e.requireAdmin(); err != nil {
		return nil, err
	}
	resp, err := e.backend.EmployeePermissions(ctx, employee.ID)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return permissions.Resolve(employee.Rol, nil), nil
		}
		return nil, err
	}
	return permissions.Resolve(employee.Rol, resp.Permissions), nil
}

// SavePermissions persists the full capability map for the employee.
func (e *Employees) SavePermissions(ctx context.Context, employeeID int64, set permissions.CapabilitySet) error {
	if err := e.requireAdmin(); err != nil {
		return err
	}
	return e.backend.SavePermissions(ctx, domain.PermissionsSaveRequest{
		EmployeeID:  employeeID,
		Permissions: set,
	})
}
