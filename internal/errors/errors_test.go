package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeBackendFailure, cause, "调用后端失败", WithMetadata("tool", "payment"))

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected wrapped error to match cause")
	}
	if CodeOf(err) != CodeBackendFailure {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if got := err.Metadata()["tool"]; got != "payment" {
		t.Fatalf("unexpected metadata: %q", got)
	}

	outer := fmt.Errorf("outer: %w", err)
	if CodeOf(outer) != CodeBackendFailure {
		t.Fatalf("expected code to survive fmt wrapping, got %s", CodeOf(outer))
	}
	if !stdErrors.Is(outer, New(CodeBackendFailure, "")) {
		t.Fatalf("expected errors.Is to match by code")
	}
}

func TestDefaultsFromRegistry(t *testing.T) {
	err := New(CodeUnsupportedTool, "")
	if err.Message() != "unsupported tool" {
		t.Fatalf("unexpected default message: %q", err.Message())
	}
	if err.Severity() != SeverityCritical {
		t.Fatalf("unexpected severity: %s", err.Severity())
	}
	if SeverityOf(stdErrors.New("plain")) != SeverityCritical {
		t.Fatalf("plain errors should fall back to unknown severity")
	}
	if CodeOf(nil) != CodeUnknown {
		t.Fatalf("nil error should map to unknown code")
	}
}

func TestRegisterCustomCode(t *testing.T) {
	const code Code = "TEST_CUSTOM"
	Register(code, Attributes{Message: "custom", Severity: SeverityInfo})
	if got := AttributesOf(code); got.Message != "custom" || got.Severity != SeverityInfo {
		t.Fatalf("unexpected attributes: %+v", got)
	}
	if got := New(code, "", WithSeverity(SeverityWarning)).Severity(); got != SeverityWarning {
		t.Fatalf("severity override ignored: %s", got)
	}
}
