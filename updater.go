package buildcore

// moduleUpdate is an immutable descriptor posted by a module-completion
// callback. Applying it is the only way (modules, sources) changes during
// a build, which is what makes concurrent callbacks from the external
// compiler's worker threads safe without the caller ever touching shared
// state directly - the "agent-held mutable tuple" of spec.md §9 becomes a
// channel-fed reducer instead.
type moduleUpdate struct {
	source            string
	module            ModuleRecord
	external          []string
	compileReferences []string
	runtimeReferences []string
	compileDispatches []Dispatch
	runtimeDispatches []Dispatch
}

// updater owns (modules, sources) for the duration of a build and applies
// posted updates one at a time on a dedicated goroutine, giving sequential
// consistency without a shared mutex (spec.md §5). Updates for different
// modules are commutative; for the same module posted twice (not expected
// within one build, per spec.md §5) the last one applied wins.
type updater struct {
	modules moduleIndex
	sources map[string]SourceRecord

	updates chan moduleUpdate
	done    chan struct{}
}

func newUpdater(modules []ModuleRecord, sources []SourceRecord) *updater {
	sourceByPath := make(map[string]SourceRecord, len(sources))
	for _, s := range sources {
		sourceByPath[s.Source] = s
	}
	u := &updater{
		modules: newModuleIndexFrom(modules),
		sources: sourceByPath,
		updates: make(chan moduleUpdate, 64),
		done:    make(chan struct{}),
	}
	go u.run()
	return u
}

func (u *updater) run() {
	for upd := range u.updates {
		u.apply(upd)
	}
	close(u.done)
}

// apply implements the per-module mutation rule from spec.md §4.5: the
// source is prepended to the module's Sources (deleting any prior
// occurrence), external paths are unioned into the source record, the
// module record is stored with Binary attached and Beam cleared, and the
// source record is stored with Warnings reset (the coordinator fills
// those in later, grouped by absolute path, once the whole build
// succeeds).
func (u *updater) apply(upd moduleUpdate) {
	m := upd.module
	if existing, ok := u.modules.Get(m.Module); ok {
		m = existing.withSourceAtHead(upd.source)
		m.Kind = upd.module.Kind
		m.Impl = upd.module.Impl
		m.Binary = upd.module.Binary
	} else {
		m.Sources = []string{upd.source}
	}
	m.Beam = ""
	u.modules.Insert(m.Module, m)

	src, ok := u.sources[upd.source]
	if !ok {
		src = SourceRecord{Source: upd.source}
	}
	src = src.withExternalUnion(upd.external)
	src.CompileReferences = unionStrings(src.CompileReferences, upd.compileReferences)
	src.RuntimeReferences = unionStrings(src.RuntimeReferences, upd.runtimeReferences)
	src.CompileDispatches = append(src.CompileDispatches, upd.compileDispatches...)
	src.RuntimeDispatches = append(src.RuntimeDispatches, upd.runtimeDispatches...)
	src.Warnings = nil
	u.sources[upd.source] = src
}

// post enqueues an update. Safe to call concurrently from multiple
// goroutines (the compiler's worker threads).
func (u *updater) post(upd moduleUpdate) {
	u.updates <- upd
}

// close stops accepting updates and blocks until every posted update has
// been applied.
func (u *updater) close() (modules []ModuleRecord, sources []SourceRecord) {
	close(u.updates)
	<-u.done
	return u.modules.toSlice(), sourcesToSlice(u.sources)
}

func unionStrings(existing, add []string) []string {
	seen := make(map[string]bool, len(existing)+len(add))
	out := make([]string, 0, len(existing)+len(add))
	for _, s := range existing {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range add {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sourcesToSlice(m map[string]SourceRecord) []SourceRecord {
	out := make([]SourceRecord, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}
