package buildcore

import "github.com/armon/go-radix"

// moduleIndex is a typed wrapper over a radix trie keyed by module id,
// adapted from golang-dep's deducerTrie (typed_radix.go): avoid type
// assertions at call sites. Internal-toolchain-module filtering does not
// use the trie; see hasInternalPrefix below.
type moduleIndex struct {
	t *radix.Tree
}

func newModuleIndex() moduleIndex {
	return moduleIndex{t: radix.New()}
}

func (idx moduleIndex) Get(id string) (ModuleRecord, bool) {
	if v, has := idx.t.Get(id); has {
		return v.(ModuleRecord), true
	}
	return ModuleRecord{}, false
}

func (idx moduleIndex) Insert(id string, m ModuleRecord) {
	idx.t.Insert(id, m)
}

func (idx moduleIndex) Delete(id string) {
	idx.t.Delete(id)
}

func (idx moduleIndex) Len() int {
	return idx.t.Len()
}

// Walk visits every entry; order is the trie's lexical order, not insertion
// order, which is fine since the solver's fixed point doesn't care about
// traversal order.
func (idx moduleIndex) Walk(fn func(id string, m ModuleRecord) bool) {
	idx.t.Walk(func(s string, v interface{}) bool {
		return fn(s, v.(ModuleRecord))
	})
}

func newModuleIndexFrom(modules []ModuleRecord) moduleIndex {
	idx := newModuleIndex()
	for _, m := range modules {
		idx.Insert(m.Module, m)
	}
	return idx
}

func (idx moduleIndex) toSlice() []ModuleRecord {
	out := make([]ModuleRecord, 0, idx.Len())
	idx.Walk(func(_ string, m ModuleRecord) bool {
		out = append(out, m)
		return false
	})
	return out
}

// hasInternalPrefix reports whether id is an internal-toolchain module,
// identified by a prefix match against the configured internal prefixes -
// the string-check replacement spec.md §9 calls for in place of native
// atom-prefix matching.
func hasInternalPrefix(id string, prefixes []string) bool {
	for _, p := range prefixes {
		if len(id) >= len(p) && id[:len(p)] == p {
			return true
		}
	}
	return false
}
