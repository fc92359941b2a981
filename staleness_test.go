package buildcore

import "testing"

func modSet(ms []ModuleRecord) map[string]bool {
	out := make(map[string]bool, len(ms))
	for _, m := range ms {
		out[m.Module] = true
	}
	return out
}

func TestSolveStalenessCleanModuleSurvives(t *testing.T) {
	modules := []ModuleRecord{{Module: "A", Sources: []string{"a.src"}}}
	sources := []SourceRecord{{Source: "a.src"}}

	res := solveStaleness(modules, sources, nil, nil)

	if len(res.Surviving) != 1 || res.Surviving[0].Module != "A" {
		t.Fatalf("expected A to survive, got %+v", res.Surviving)
	}
	if len(res.ToCompile) != 0 {
		t.Fatalf("expected nothing to recompile, got %v", res.ToCompile)
	}
}

func TestSolveStalenessDirtySourceDropsModule(t *testing.T) {
	modules := []ModuleRecord{{Module: "A", Sources: []string{"a.src"}}}
	sources := []SourceRecord{{Source: "a.src"}}

	res := solveStaleness(modules, sources, map[string]bool{"a.src": true}, nil)

	if len(res.Surviving) != 0 {
		t.Fatalf("expected A to be dropped, got %+v", res.Surviving)
	}
	if !res.ToCompile["a.src"] {
		t.Fatalf("expected a.src queued for recompile, got %v", res.ToCompile)
	}
}

// TestTransitiveCompileStaleness covers spec.md invariant 2: if m1
// compile-references m2 and m2 is rebuilt, m1 is rebuilt too.
func TestTransitiveCompileStaleness(t *testing.T) {
	modules := []ModuleRecord{
		{Module: "A", Sources: []string{"a.src"}},
		{Module: "B", Sources: []string{"b.src"}},
	}
	sources := []SourceRecord{
		{Source: "a.src"},
		{Source: "b.src", CompileReferences: []string{"A"}},
	}

	res := solveStaleness(modules, sources, map[string]bool{"a.src": true}, nil)

	if len(res.Surviving) != 0 {
		t.Fatalf("expected both A and B dropped, got %+v", res.Surviving)
	}
	if !res.ToCompile["a.src"] || !res.ToCompile["b.src"] {
		t.Fatalf("expected both sources queued, got %v", res.ToCompile)
	}
}

// TestRuntimeReferenceDoesNotForceRebuild covers invariant 3: a
// runtime-only reference propagates staleness downstream but does not
// force the referrer's own rebuild.
func TestRuntimeReferenceDoesNotForceRebuild(t *testing.T) {
	modules := []ModuleRecord{
		{Module: "A", Sources: []string{"a.src"}},
		{Module: "B", Sources: []string{"b.src"}},
	}
	sources := []SourceRecord{
		{Source: "a.src"},
		{Source: "b.src", RuntimeReferences: []string{"A"}},
	}

	res := solveStaleness(modules, sources, map[string]bool{"a.src": true}, nil)

	if !res.ToCompile["a.src"] {
		t.Fatalf("expected a.src queued, got %v", res.ToCompile)
	}
	if res.ToCompile["b.src"] {
		t.Fatalf("expected b.src NOT queued (runtime-only reference), got %v", res.ToCompile)
	}
	if modSet(res.Surviving)["B"] == false {
		t.Fatalf("expected B to survive, got %+v", res.Surviving)
	}
}

// TestRuntimeStalenessPropagatesToNextHop: B runtime-refs A, C
// compile-refs B. A's rebuild marks B stale (not rebuilt), which then
// forces C to rebuild because C compile-depends on a now-stale B.
func TestRuntimeStalenessPropagatesToNextHop(t *testing.T) {
	modules := []ModuleRecord{
		{Module: "A", Sources: []string{"a.src"}},
		{Module: "B", Sources: []string{"b.src"}},
		{Module: "C", Sources: []string{"c.src"}},
	}
	sources := []SourceRecord{
		{Source: "a.src"},
		{Source: "b.src", RuntimeReferences: []string{"A"}},
		{Source: "c.src", CompileReferences: []string{"B"}},
	}

	res := solveStaleness(modules, sources, map[string]bool{"a.src": true}, nil)

	if res.ToCompile["b.src"] {
		t.Fatalf("B must not be rebuilt by a runtime-only reference: %v", res.ToCompile)
	}
	if !res.ToCompile["c.src"] {
		t.Fatalf("C must be rebuilt: its compile-ref B was marked stale by propagation, got %v", res.ToCompile)
	}
	if modSet(res.Surviving)["B"] == false {
		t.Fatalf("B should still survive (runtime staleness alone doesn't drop it), got %+v", res.Surviving)
	}
}

func TestSolveStalenessSeedFromUpstream(t *testing.T) {
	modules := []ModuleRecord{{Module: "A", Sources: []string{"a.src"}}}
	sources := []SourceRecord{{Source: "a.src", CompileReferences: []string{"upstream_dep"}}}

	res := solveStaleness(modules, sources, nil, map[string]bool{"upstream_dep": true})

	if len(res.Surviving) != 0 {
		t.Fatalf("expected A dropped due to stale upstream compile-ref, got %+v", res.Surviving)
	}
	if !res.ToCompile["a.src"] {
		t.Fatalf("expected a.src queued, got %v", res.ToCompile)
	}
}

func TestSolveStalenessRemovedSourceDropsModule(t *testing.T) {
	// A module whose only source was removed from disk: the orchestrator
	// seeds `changed` with removed paths too (spec.md §4.6 step 7), and
	// the module is dropped with nothing left to queue for it.
	modules := []ModuleRecord{{Module: "A", Sources: []string{"a.src"}}}
	sources := []SourceRecord{{Source: "a.src"}}

	res := solveStaleness(modules, sources, map[string]bool{"a.src": true}, nil)

	if len(res.Surviving) != 0 {
		t.Fatalf("expected A dropped, got %+v", res.Surviving)
	}
}

func TestSolveStalenessToleratesCycles(t *testing.T) {
	modules := []ModuleRecord{
		{Module: "A", Sources: []string{"a.src"}},
		{Module: "B", Sources: []string{"b.src"}},
	}
	sources := []SourceRecord{
		{Source: "a.src", CompileReferences: []string{"B"}},
		{Source: "b.src", CompileReferences: []string{"A"}},
	}

	res := solveStaleness(modules, sources, map[string]bool{"a.src": true}, nil)

	if len(res.Surviving) != 0 {
		t.Fatalf("expected both dropped in a compile-cycle, got %+v", res.Surviving)
	}
	if !res.ToCompile["a.src"] || !res.ToCompile["b.src"] {
		t.Fatalf("expected both sources queued, got %v", res.ToCompile)
	}
}

func TestSolveStalenessIdempotentOnNoChange(t *testing.T) {
	modules := []ModuleRecord{{Module: "A", Sources: []string{"a.src"}}}
	sources := []SourceRecord{{Source: "a.src"}}

	res := solveStaleness(modules, sources, nil, nil)
	if len(res.ToCompile) != 0 {
		t.Fatalf("expected noop, got %v", res.ToCompile)
	}
	if len(res.Surviving) != 1 {
		t.Fatalf("expected A untouched, got %+v", res.Surviving)
	}
}
