package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestAsFindsWrappedError(t *testing.T) {
	base := New(CodePermission, "missing capability").WithDetails(PermissionDetails{
		Capability: "can_create_sales",
		Rol:        "vendedor",
	})
	wrapped := fmt.Errorf("register sale: %w", base)

	found := As(wrapped)
	if found == nil {
		t.Fatalf("expected to recover *Error from chain")
	}
	if found.Code() != CodePermission {
		t.Fatalf("expected permission code, got %s", found.Code())
	}
	details, ok := found.Details().(PermissionDetails)
	if !ok || details.Capability != "can_create_sales" {
		t.Fatalf("unexpected details: %#v", found.Details())
	}
}

func TestCodeOfDefaultsToTransport(t *testing.T) {
	if got := CodeOf(errors.New("connection reset")); got != CodeTransport {
		t.Fatalf("expected transport code for plain errors, got %s", got)
	}
	if got := CodeOf(New(CodeNotFound, "no such sku")); got != CodeNotFound {
		t.Fatalf("expected not-found code, got %s", got)
	}
}

func TestOnlyTransportIsRetryable(t *testing.T) {
	for _, code := range []Code{CodeValidation, CodeNotFound, CodePermission, CodeSession} {
		if code.Retryable() {
			t.Fatalf("%s should not be retryable", code)
		}
	}
	if !CodeTransport.Retryable() {
		t.Fatalf("transport errors must stay retryable")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(CodeTransport, cause, "could not reach backend")
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to survive wrapping")
	}
}
