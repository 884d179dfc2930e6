// Package stub loads and queries the native-callee stub database:
// version-tagged JSON files mapping module → class → method → exception
// sets, consulted for callees whose implementation is not target-language
// source.
package stub

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/markjoshwel/raiseattention/model"
	"github.com/markjoshwel/raiseattention/output"
)

// FormatVersion is the stub database format this store reads.
const FormatVersion = "2.0"

// Metadata is the top-level metadata object of one stub file.
type Metadata struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	FormatVersion string `json:"format_version"`
	Generator     string `json:"generator"`
	Package       string `json:"package,omitempty"`
}

// methodTable maps method name to its exception set.
type methodTable map[string]model.ExceptionSet

// classTable maps class name to its methods. The empty class name holds
// module-level functions.
type classTable map[string]methodTable

// Store is the immutable, process-lifetime stub index. All lookups are
// read-only after Load; concurrent readers need no locking.
type Store struct {
	modules    map[string]classTable
	provenance map[string]string
	tlVersion  string
}

// Load builds a store for the given target-language version from the
// embedded builtin stubs plus every *.json file under dir (which may be
// empty). Stub files whose version specifier rejects tlVersion are
// skipped; files that fail to parse are logged at debug level and
// ignored per the error-handling contract.
func Load(dir, tlVersion string, logger *output.Logger) (*Store, error) {
	s := &Store{
		modules:    make(map[string]classTable),
		provenance: make(map[string]string),
		tlVersion:  tlVersion,
	}

	if err := s.mergeFile(builtinStubs, "embedded builtins", logger); err != nil {
		return nil, fmt.Errorf("embedded stub database: %w", err)
	}

	if dir == "" {
		return s, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading stub directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Debugf("stub file %s unreadable: %v", path, err)
			continue
		}
		if err := s.mergeFile(data, name, logger); err != nil {
			logger.Debugf("stub file %s ignored: %v", path, err)
		}
	}
	return s, nil
}

// mergeFile decodes one stub file and merges it into the index. On
// exception collisions the lower confidence wins.
func (s *Store) mergeFile(data []byte, provenance string, logger *output.Logger) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding stub JSON: %w", err)
	}

	var meta Metadata
	if metaRaw, ok := raw["metadata"]; ok {
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return fmt.Errorf("decoding stub metadata: %w", err)
		}
	}
	if meta.Version != "" && !MatchesVersion(meta.Version, s.tlVersion) {
		logger.Debugf("stub %s: specifier %q rejects version %s", provenance, meta.Version, s.tlVersion)
		return nil
	}

	for moduleName, moduleRaw := range raw {
		if moduleName == "metadata" {
			continue
		}
		var classes map[string]json.RawMessage
		if err := json.Unmarshal(moduleRaw, &classes); err != nil {
			return fmt.Errorf("module %s: %w", moduleName, err)
		}
		table := s.modules[moduleName]
		if table == nil {
			table = make(classTable)
			s.modules[moduleName] = table
		}
		for className, classRaw := range classes {
			var methods map[string]json.RawMessage
			if err := json.Unmarshal(classRaw, &methods); err != nil {
				return fmt.Errorf("module %s class %s: %w", moduleName, className, err)
			}
			mt := table[className]
			if mt == nil {
				mt = make(methodTable)
				table[className] = mt
			}
			for methodName, entryRaw := range methods {
				set, err := decodeExceptionEntry(entryRaw)
				if err != nil {
					return fmt.Errorf("module %s class %s method %s: %w", moduleName, className, methodName, err)
				}
				if existing, ok := mt[methodName]; ok {
					existing.Merge(set)
				} else {
					mt[methodName] = set
				}
				s.provenance[moduleName] = provenance
			}
		}
	}
	return nil
}

// decodeExceptionEntry reads the innermost stub value: either a mapping
// of exception name to confidence string, or a list of exception names
// denoting confidence "likely" throughout.
func decodeExceptionEntry(raw json.RawMessage) (model.ExceptionSet, error) {
	set := model.NewExceptionSet()

	var asMap map[string]string
	if err := json.Unmarshal(raw, &asMap); err == nil {
		for name, conf := range asMap {
			set.Add(name, model.ParseConfidence(conf))
		}
		return set, nil
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		for _, name := range asList {
			set.Add(name, model.ConfidenceLikely)
		}
		return set, nil
	}

	return nil, fmt.Errorf("expected object or list")
}

// Lookup resolves (module, class, method) against the index.
//
// Exact match wins; when the class is absent, every class in the module
// is scanned for the method name and a hit is returned with Fuzzy set —
// this bridges native class-name mismatches such as mmap vs Mmap_object.
// Module-level functions use the empty class name.
func (s *Store) Lookup(module, class, method string) (model.StubRecord, bool) {
	table, ok := s.modules[module]
	if !ok {
		return model.StubRecord{}, false
	}

	if mt, ok := table[class]; ok {
		if set, ok := mt[method]; ok {
			return model.StubRecord{
				Exceptions: set.Clone(),
				Provenance: s.provenance[module],
			}, true
		}
	}

	// Fuzzy scan only after the exact path failed, and only when a
	// class was requested: the mismatch being bridged is a native class
	// name, never a module-level function.
	if class == "" {
		return model.StubRecord{}, false
	}
	classNames := make([]string, 0, len(table))
	for name := range table {
		classNames = append(classNames, name)
	}
	sort.Strings(classNames)
	for _, name := range classNames {
		if name == class {
			continue
		}
		if set, ok := table[name][method]; ok {
			return model.StubRecord{
				Exceptions: set.Clone(),
				Provenance: s.provenance[module],
				Fuzzy:      true,
			}, true
		}
	}
	return model.StubRecord{}, false
}

// LookupFunction resolves a module-level function.
func (s *Store) LookupFunction(module, function string) (model.StubRecord, bool) {
	return s.Lookup(module, "", function)
}

// KnownModule reports whether any stub file covers the module.
func (s *Store) KnownModule(module string) bool {
	_, ok := s.modules[module]
	return ok
}

// NativeFallback is the record used for a native callee with no stub
// coverage.
func NativeFallback() model.StubRecord {
	set := model.NewExceptionSet()
	set.Add(model.PossibleNativeException, model.ConfidenceConservative)
	return model.StubRecord{Exceptions: set, Provenance: "native fallback"}
}
