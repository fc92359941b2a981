package buildcore

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver"
	"github.com/klauspost/compress/gzip"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/termie/go-shutil"
)

// currentVersionTag guards the manifest format. Bump it whenever a
// breaking change is made to rawManifest's shape.
const currentVersionTag = "v7"

// knownOldVersionTags are recognized for the narrow purpose of
// cleanup-then-reset: every artifact they list is removed and the build
// proceeds as if no manifest existed. A tag not in this list is treated
// the same way when versionOlderThanCurrent reports it older than
// currentVersionTag; any other tag degrades to empty state silently,
// without cleanup, per spec.md §4.1.
var knownOldVersionTags = []string{"v6", "v5", "v4"}

// rawManifest is the on-disk, toml-encoded shape of the manifest. Module
// Binary is never serialized (spec.md §3: "never persisted (set to empty
// before serialization)").
type rawMeta struct {
	Version string `toml:"version"`
}

type rawModule struct {
	Module  string   `toml:"module"`
	Kind    int      `toml:"kind"`
	Impl    string   `toml:"impl,omitempty"`
	Sources []string `toml:"sources"`
	Beam    string   `toml:"beam"`
}

type rawDispatch struct {
	Module string `toml:"module"`
	Func   string `toml:"func"`
	Arity  int    `toml:"arity"`
}

type rawWarning struct {
	Line    int    `toml:"line"`
	Message string `toml:"message"`
}

type rawSource struct {
	Source            string        `toml:"source"`
	Size              int64         `toml:"size"`
	CompileReferences []string      `toml:"compile_references,omitempty"`
	RuntimeReferences []string      `toml:"runtime_references,omitempty"`
	CompileDispatches []rawDispatch `toml:"compile_dispatches,omitempty"`
	RuntimeDispatches []rawDispatch `toml:"runtime_dispatches,omitempty"`
	External          []string      `toml:"external,omitempty"`
	Warnings          []rawWarning  `toml:"warnings,omitempty"`
}

type rawManifest struct {
	Meta    rawMeta     `toml:"meta"`
	Modules []rawModule `toml:"module"`
	Sources []rawSource `toml:"source"`
}

func toRawModule(m ModuleRecord) rawModule {
	return rawModule{
		Module:  m.Module,
		Kind:    int(m.Kind),
		Impl:    m.Impl,
		Sources: m.Sources,
		Beam:    m.Beam,
	}
}

func fromRawModule(r rawModule) ModuleRecord {
	return ModuleRecord{
		Module:  r.Module,
		Kind:    ModuleKind(r.Kind),
		Impl:    r.Impl,
		Sources: r.Sources,
		Beam:    r.Beam,
	}
}

func toRawSource(s SourceRecord) rawSource {
	r := rawSource{
		Source:            s.Source,
		Size:              s.Size,
		CompileReferences: s.CompileReferences,
		RuntimeReferences: s.RuntimeReferences,
		External:          s.External,
	}
	for _, d := range s.CompileDispatches {
		r.CompileDispatches = append(r.CompileDispatches, rawDispatch{d.Module, d.Func, d.Arity})
	}
	for _, d := range s.RuntimeDispatches {
		r.RuntimeDispatches = append(r.RuntimeDispatches, rawDispatch{d.Module, d.Func, d.Arity})
	}
	for _, w := range s.Warnings {
		r.Warnings = append(r.Warnings, rawWarning{w.Line, w.Message})
	}
	return r
}

func fromRawSource(r rawSource) SourceRecord {
	s := SourceRecord{
		Source:            r.Source,
		Size:              r.Size,
		CompileReferences: r.CompileReferences,
		RuntimeReferences: r.RuntimeReferences,
		External:          r.External,
	}
	for _, d := range r.CompileDispatches {
		s.CompileDispatches = append(s.CompileDispatches, Dispatch{d.Module, d.Func, d.Arity})
	}
	for _, d := range r.RuntimeDispatches {
		s.RuntimeDispatches = append(s.RuntimeDispatches, Dispatch{d.Module, d.Func, d.Arity})
	}
	for _, w := range r.Warnings {
		s.Warnings = append(s.Warnings, Warning{w.Line, w.Message})
	}
	return s
}

// versionOlderThanCurrent compares tag against currentVersionTag using
// Masterminds/semver by treating "vN" as "N.0.0", so isKnownOldVersionTag
// can accept any tag "< current" instead of only exact-match-per-tag.
func versionOlderThanCurrent(tag string) bool {
	cur, err := semver.NewVersion(strings.TrimPrefix(currentVersionTag, "v") + ".0.0")
	if err != nil {
		return false
	}
	got, err := semver.NewVersion(strings.TrimPrefix(tag, "v") + ".0.0")
	if err != nil {
		return false
	}
	return got.LessThan(cur)
}

func isKnownOldVersionTag(tag string) bool {
	for _, v := range knownOldVersionTags {
		if v == tag {
			return true
		}
	}
	return tag != currentVersionTag && versionOlderThanCurrent(tag)
}

// readManifest implements the Manifest Codec's read operation (spec.md
// §4.1). It never returns an error for a corrupt or unreadable manifest;
// instead it degrades to empty state, silently for unknown/corrupt
// content, or after best-effort artifact cleanup for a known older
// version tag. The only errors returned are genuine I/O failures other
// than "file does not exist".
func readManifest(path, compileDir string) (modules []ModuleRecord, sources []SourceRecord, migrated bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, false, nil
		}
		return nil, nil, false, errors.Wrapf(err, "opening manifest %s", path)
	}
	defer f.Close()

	raw, decErr := decodeManifestBytes(f)
	if decErr != nil {
		// Decoding error: degrade silently, per spec.md §4.1/§7.
		return nil, nil, false, nil
	}

	if raw.Meta.Version == currentVersionTag {
		modules = make([]ModuleRecord, 0, len(raw.Modules))
		for _, rm := range raw.Modules {
			m := fromRawModule(rm)
			m.Beam = filepath.Join(compileDir, m.Beam)
			modules = append(modules, m)
		}
		sources = make([]SourceRecord, 0, len(raw.Sources))
		for _, rs := range raw.Sources {
			sources = append(sources, fromRawSource(rs))
		}
		return modules, sources, false, nil
	}

	if isKnownOldVersionTag(raw.Meta.Version) {
		// Best-effort backup of the stale manifest before we destroy its
		// referents, mirroring project_manager.go's defensive use of
		// shutil.CopyTree when materializing a revision.
		_ = shutil.CopyFile(path, path+".bak", false)

		for _, rm := range raw.Modules {
			_ = os.Remove(filepath.Join(compileDir, rm.Beam))
		}
		return nil, nil, true, nil
	}

	// Unrecognized tag: silent full rebuild, no cleanup.
	return nil, nil, false, nil
}

func decodeManifestBytes(r io.Reader) (rawManifest, error) {
	var raw rawManifest
	gz, err := gzip.NewReader(r)
	if err != nil {
		return raw, err
	}
	defer gz.Close()

	buf, err := ioutil.ReadAll(gz)
	if err != nil {
		return raw, err
	}
	if err := toml.Unmarshal(buf, &raw); err != nil {
		return raw, err
	}
	return raw, nil
}

// writeManifest implements the Manifest Codec's write operation (spec.md
// §4.1). If both modules and sources are empty, the manifest file is
// deleted. Otherwise every module with a non-empty Binary is flushed to
// compileDir/<module>.beam with its mtime pinned to timestamp, Binary is
// stripped, Beam is rewritten to the relative filename, the whole manifest
// is toml-encoded and gzip-compressed to path, and finally - on a
// successful write of a non-empty manifest - notifyUpstreamRefresh (if
// non-nil) is called, standing in for spec.md §4.1's last step: notifying
// the dependency system that the upstream toolchain lock should be
// refreshed. That dependency system is an external collaborator out of
// scope for this core (spec.md §1).
func writeManifest(path string, modules []ModuleRecord, sources []SourceRecord, compileDir string, timestamp time.Time, notifyUpstreamRefresh func()) error {
	if len(modules) == 0 && len(sources) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "removing empty manifest %s", path)
		}
		return nil
	}

	if err := os.MkdirAll(compileDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating compile directory %s", compileDir)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating manifest directory %s", filepath.Dir(path))
	}

	raw := rawManifest{Meta: rawMeta{Version: currentVersionTag}}
	for _, m := range modules {
		relBeam := m.Beam
		if len(m.Binary) > 0 {
			relBeam = m.Module + ".beam"
			artifactPath := filepath.Join(compileDir, relBeam)
			if err := ioutil.WriteFile(artifactPath, m.Binary, 0o644); err != nil {
				return errors.Wrapf(err, "writing artifact for module %s", m.Module)
			}
			if err := os.Chtimes(artifactPath, timestamp, timestamp); err != nil {
				return errors.Wrapf(err, "setting mtime on artifact for module %s", m.Module)
			}
		} else if relBeam != "" {
			relBeam, _ = filepath.Rel(compileDir, relBeam)
		}
		m.Binary = nil
		m.Beam = relBeam
		raw.Modules = append(raw.Modules, toRawModule(m))
	}
	for _, s := range sources {
		raw.Sources = append(raw.Sources, toRawSource(s))
	}

	buf, err := toml.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "encoding manifest")
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(buf); err != nil {
		return errors.Wrap(err, "compressing manifest")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "closing manifest compressor")
	}

	tmp := path + ".tmp"
	if err := ioutil.WriteFile(tmp, compressed.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "writing manifest temp file %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "renaming manifest into place at %s", path)
	}
	if err := os.Chtimes(path, timestamp, timestamp); err != nil {
		return errors.Wrapf(err, "setting manifest mtime %s", path)
	}
	if notifyUpstreamRefresh != nil {
		notifyUpstreamRefresh()
	}
	return nil
}
