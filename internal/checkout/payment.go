// Package checkout drives the payment flow that turns a cart into a
// persisted sale: method selection, received-amount arithmetic, the transfer
// and customer sub-forms, and the idempotent submission itself.
package checkout

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Payment holds the received-amount arithmetic for the current checkout.
// Change and debt are mutually exclusive: a positive delta is change owed to
// the customer, a negative delta is debt the customer takes on.
type Payment struct {
	method        string
	receivedInput string
	received      decimal.Decimal
	parsed        bool
	total         decimal.Decimal
}

func NewPayment() *Payment {
	return &Payment{}
}

// SetMethod records the payment method and discards any pending sub-form
// input from a previously chosen method.
func (p *Payment) SetMethod(method string) {
	p.method = method
}

func (p *Payment) Method() string {
	return p.method
}

// SetReceived recomputes change and debt from a raw amount input against the
// given cart total. Unparseable input zeroes both figures instead of erroring
// so the display tracks keystrokes.
func (p *Payment) SetReceived(input string, total decimal.Decimal) {
	p.receivedInput = input
	p.total = total

	amount, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil {
		p.parsed = false
		p.received = decimal.Zero
		return
	}
	p.parsed = true
	p.received = amount
}

func (p *Payment) Received() decimal.Decimal {
	return p.received
}

func (p *Payment) ReceivedInput() string {
	return p.receivedInput
}

// Change is received − total when the customer paid enough, otherwise the
// signed (negative) shortfall. Zero when the input never parsed.
func (p *Payment) Change() decimal.Decimal {
	if !p.parsed {
		return decimal.Zero
	}
	return p.received.Sub(p.total)
}

// Debt is the absolute shortfall, zero when the customer covered the total.
func (p *Payment) Debt() decimal.Decimal {
	change := p.Change()
	if change.IsNegative() {
		return change.Abs()
	}
	return decimal.Zero
}

// Covered reports whether the received amount settles the total in full.
func (p *Payment) Covered() bool {
	return p.parsed && !p.Change().IsNegative()
}

func (p *Payment) Reset() {
	*p = Payment{}
}
