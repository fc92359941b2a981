package buildcore

// solveResult is the output of the Staleness Solver (spec.md §4.4):
// modules that survive (need not be recompiled), the final set of source
// paths that must be recompiled, and the ids of every module dropped
// along the way (spec.md §4.4: a dirty module's artifact must be purged -
// the caller purges the beam of any id here that doesn't end up recompiled).
type solveResult struct {
	Surviving []ModuleRecord
	ToCompile map[string]bool
	Dropped   []string
}

// solveStaleness runs the fixed-point algorithm of spec.md §4.4 to
// exhaustion. changed and stale are consumed as starting seeds and are
// not mutated; the function works on private copies so callers can reuse
// their own sets afterward.
//
// The module reference graph can contain cycles (spec.md §9): the
// algorithm tolerates them because it only ever grows two monotone,
// finite sets (changed, stale) and terminates the moment a pass adds
// nothing new - no cycle-breaking logic is required.
func solveStaleness(modules []ModuleRecord, sources []SourceRecord, seedChanged map[string]bool, seedStale map[string]bool) solveResult {
	bySource := make(map[string]SourceRecord, len(sources))
	for _, s := range sources {
		bySource[s.Source] = s
	}

	changed := make(map[string]bool, len(seedChanged))
	for p := range seedChanged {
		changed[p] = true
	}
	stale := make(map[string]bool, len(seedStale))
	for m := range seedStale {
		stale[m] = true
	}

	idx := newModuleIndexFrom(modules)
	var dropped []string

	for {
		grewChanged := false
		grewStale := false
		var toDrop []string

		// Each pass walks a fixed snapshot of the surviving records;
		// idx is only mutated (drops) after the snapshot has been fully
		// examined, so a drop triggered by one record never skips or
		// revisits another record mid-walk.
		idx.Walk(func(id string, m ModuleRecord) bool {
			compileRefs, runtimeRefs := referenceSets(m, bySource)

			dirty := false
			for _, s := range m.Sources {
				if changed[s] {
					dirty = true
					break
				}
			}
			if !dirty {
				for ref := range compileRefs {
					if stale[ref] {
						dirty = true
						break
					}
				}
			}

			if dirty {
				toDrop = append(toDrop, id)
				for _, s := range m.Sources {
					if !changed[s] {
						changed[s] = true
						grewChanged = true
					}
				}
				if !stale[id] {
					stale[id] = true
					grewStale = true
				}
				return false
			}

			if !stale[id] {
				for ref := range runtimeRefs {
					if stale[ref] {
						stale[id] = true
						grewStale = true
						break
					}
				}
			}
			return false
		})

		dropped = append(dropped, toDrop...)
		for _, id := range toDrop {
			idx.Delete(id)
		}

		if !grewChanged && !grewStale {
			break
		}
	}

	return solveResult{Surviving: idx.toSlice(), ToCompile: changed, Dropped: dropped}
}

// referenceSets computes a module's union of compile-time and runtime
// references across all of its contributing sources (spec.md §4.4 step 1).
func referenceSets(m ModuleRecord, bySource map[string]SourceRecord) (compile, runtime map[string]bool) {
	compile = make(map[string]bool)
	runtime = make(map[string]bool)
	for _, sp := range m.Sources {
		src, ok := bySource[sp]
		if !ok {
			continue
		}
		for _, r := range src.CompileReferences {
			compile[r] = true
		}
		for _, r := range src.RuntimeReferences {
			runtime[r] = true
		}
	}
	return compile, runtime
}
