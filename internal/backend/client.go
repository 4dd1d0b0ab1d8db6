// Package backend is the terminal's only path to remote state. The backend
// owns every truth (credentials, stock, sales, customers, permissions); this
// client just speaks its JSON contract and classifies its failures.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"puntoventa/terminal/internal/apperr"
	"puntoventa/terminal/internal/domain"
)

// TokenSource supplies the bearer token for authenticated calls. The session
// manager satisfies it.
type TokenSource interface {
	Token() string
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	onExpired  func()
	log        zerolog.Logger
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenSource
	// OnSessionExpired runs whenever any call comes back 401, before the
	// error is returned to the caller.
	OnSessionExpired func()
	Logger           zerolog.Logger
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    opts.BaseURL,
		tokens:     opts.Tokens,
		onExpired:  opts.OnSessionExpired,
		log:        opts.Logger.With().Str("component", "backend").Logger(),
	}
}

// do runs one request/response cycle. Non-2xx statuses map onto the error
// taxonomy; a 401 additionally fires the session-expiry hook.
func (c *Client) do(ctx context.Context, method string, path string, headers map[string]string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.CodeTransport, err, "could not reach backend, check your connection")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.CodeTransport, err, "reading backend response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if c.onExpired != nil {
			c.onExpired()
		}
		return apperr.New(apperr.CodeSession, "session expired, sign in again")
	case resp.StatusCode == http.StatusForbidden:
		return apperr.New(apperr.CodePermission, "backend denied the action")
	case resp.StatusCode == http.StatusNotFound:
		return apperr.New(apperr.CodeNotFound, "not found")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("backend error")
		return apperr.New(apperr.CodeTransport, fmt.Sprintf("backend returned status %d", resp.StatusCode)).
			WithDetails(map[string]string{"body": string(raw)})
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.CodeTransport, err, "decoding backend response")
	}
	return nil
}

// Login authenticates against POST /login. A 401 here means bad credentials,
// not an expired session, so the expiry hook is bypassed on purpose.
func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("marshalling login request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(payload))
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("building login request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.LoginResponse{}, apperr.Wrap(apperr.CodeTransport, err, "could not reach backend, check your connection")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.LoginResponse{}, apperr.Wrap(apperr.CodeTransport, err, "reading login response")
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return domain.LoginResponse{}, apperr.New(apperr.CodeValidation, "invalid credentials")
	}
	if resp.StatusCode != http.StatusOK {
		return domain.LoginResponse{}, apperr.New(apperr.CodeTransport, fmt.Sprintf("login returned status %d", resp.StatusCode))
	}

	var login domain.LoginResponse
	if err := json.Unmarshal(raw, &login); err != nil {
		return domain.LoginResponse{}, apperr.Wrap(apperr.CodeTransport, err, "decoding login response")
	}
	return login, nil
}

func (c *Client) ProductBySKU(ctx context.Context, sku string) (domain.Product, error) {
	var product domain.Product
	err := c.do(ctx, http.MethodGet, "/stock/products/by-sku/"+url.PathEscape(sku), nil, nil, &product)
	return product, err
}

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	err := c.do(ctx, http.MethodGet, "/stock/products", nil, nil, &products)
	return products, err
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	err := c.do(ctx, http.MethodGet, "/stock/categories", nil, nil, &categories)
	return categories, err
}

func (c *Client) UpsertProduct(ctx context.Context, req domain.ProductUpsertRequest) error {
	return c.do(ctx, http.MethodPost, "/stock/products/upsert", nil, req, nil)
}

func (c *Client) FinalizeStock(ctx context.Context, req domain.StockFinalizeRequest) error {
	return c.do(ctx, http.MethodPost, "/stock/finalize", nil, req, nil)
}

// CreateSale persists a sale. The client-generated idempotency key rides both
// in the body and as a header so a backend that de-duplicates can catch a
// retry whose first acknowledgment was lost.
func (c *Client) CreateSale(ctx context.Context, sale domain.SaleRecord) (domain.SaleCreateResponse, error) {
	var created domain.SaleCreateResponse
	headers := map[string]string{"Idempotency-Key": sale.IdempotencyKey}
	err := c.do(ctx, http.MethodPost, "/sales", headers, sale, &created)
	return created, err
}

func (c *Client) ListSales(ctx context.Context) ([]domain.Sale, error) {
	var sales []domain.Sale
	err := c.do(ctx, http.MethodGet, "/sales", nil, nil, &sales)
	return sales, err
}

func (c *Client) SaleDetails(ctx context.Context, saleID int64) ([]domain.SaleDetail, error) {
	var details []domain.SaleDetail
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/sales/%d/detalles", saleID), nil, nil, &details)
	return details, err
}

func (c *Client) PayDebt(ctx context.Context, saleID int64, req domain.PayDebtRequest) (domain.PayDebtResponse, error) {
	var resp domain.PayDebtResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/sales/%d/pagar-deuda", saleID), nil, req, &resp)
	return resp, err
}

func (c *Client) CustomerByRUT(ctx context.Context, rut string) (domain.Customer, error) {
	var customer domain.Customer
	err := c.do(ctx, http.MethodGet, "/clientes/rut/"+url.PathEscape(rut), nil, nil, &customer)
	return customer, err
}

func (c *Client) CreateCustomer(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	var created domain.Customer
	err := c.do(ctx, http.MethodPost, "/clientes", nil, customer, &created)
	return created, err
}

func (c *Client) CustomersWithDebt(ctx context.Context, filtro string) ([]domain.Customer, error) {
	var customers []domain.Customer
	err := c.do(ctx, http.MethodGet, "/clientes/con-deuda?filtro="+url.QueryEscape(filtro), nil, nil, &customers)
	return customers, err
}

func (c *Client) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	var employees []domain.Employee
	err := c.do(ctx, http.MethodGet, "/usuarios", nil, nil, &employees)
	return employees, err
}

func (c *Client) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) error {
	return c.do(ctx, http.MethodPost, "/usuarios", nil, req, nil)
}

func (c *Client) UpdateEmployee(ctx context.Context, id int64, req domain.EmployeeUpdateRequest) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/usuarios/%d", id), nil, req, nil)
}

func (c *Client) DeleteEmployee(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/usuarios/%d", id), nil, nil, nil)
}

func (c *Client) EmployeePermissions(ctx context.Context, employeeID int64) (domain.PermissionsResponse, error) {
	var resp domain.PermissionsResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/permissions/%d", employeeID), nil, nil, &resp)
	return resp, err
}

func (c *Client) SavePermissions(ctx context.Context, req domain.PermissionsSaveRequest) error {
	return c.do(ctx, http.MethodPost, "/permissions", nil, req, nil)
}
