package buildcore

import "testing"

func TestToDiagnostics(t *testing.T) {
	in := []CompilerDiagnostic{
		{File: "/abs/a.src", Line: 10, Message: "boom"},
	}
	out := toDiagnostics(in, SeverityError)
	if len(out) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(out))
	}
	d := out[0]
	if d.File != "/abs/a.src" || d.Position != 10 || d.Message != "boom" || d.Severity != SeverityError {
		t.Fatalf("unexpected diagnostic: %+v", d)
	}
}

func TestSeverityString(t *testing.T) {
	if SeverityError.String() != "error" {
		t.Errorf("SeverityError.String() = %q", SeverityError.String())
	}
	if SeverityWarning.String() != "warning" {
		t.Errorf("SeverityWarning.String() = %q", SeverityWarning.String())
	}
}
