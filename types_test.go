package buildcore

import "testing"

func TestModuleRecordWithSourceAtHead(t *testing.T) {
	m := ModuleRecord{Module: "A", Sources: []string{"b.src", "a.src", "c.src"}}

	got := m.withSourceAtHead("a.src")
	want := []string{"a.src", "b.src", "c.src"}
	if !stringsEqual(got.Sources, want) {
		t.Fatalf("withSourceAtHead(%q) = %v, want %v", "a.src", got.Sources, want)
	}

	// Original record must be untouched.
	if !stringsEqual(m.Sources, []string{"b.src", "a.src", "c.src"}) {
		t.Fatalf("withSourceAtHead mutated receiver: %v", m.Sources)
	}
}

func TestModuleRecordWithSourceAtHeadNewSource(t *testing.T) {
	m := ModuleRecord{Module: "A", Sources: []string{"a.src"}}
	got := m.withSourceAtHead("b.src")
	want := []string{"b.src", "a.src"}
	if !stringsEqual(got.Sources, want) {
		t.Fatalf("got %v, want %v", got.Sources, want)
	}
}

func TestSourceRecordWithExternalUnion(t *testing.T) {
	s := SourceRecord{Source: "a.src", External: []string{"cfg.txt"}}

	got := s.withExternalUnion([]string{"cfg.txt", "other.txt"})
	want := []string{"cfg.txt", "other.txt"}
	if !stringsEqual(got.External, want) {
		t.Fatalf("got %v, want %v", got.External, want)
	}

	// Union is idempotent.
	again := got.withExternalUnion([]string{"cfg.txt"})
	if !stringsEqual(again.External, want) {
		t.Fatalf("second union changed result: %v", again.External)
	}
}

func TestModuleKindString(t *testing.T) {
	cases := map[ModuleKind]string{
		KindModule:   "module",
		KindProtocol: "protocol",
		KindImpl:     "impl",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
