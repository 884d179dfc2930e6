// Package resolver locates the implementation behind an imported
// qualified name: project source, standard-library source, site-packages
// source, or native code known only to the stub store. Parsed modules are
// memoised by absolute path and content hash.
package resolver

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/markjoshwel/raiseattention/model"
)

// Environment describes the detected target-language installation for a
// project: interpreter version, standard-library directories and
// site-packages directories. Detection runs once per session.
type Environment struct {
	Version      string
	StdlibDirs   []string
	SitePackages []string
}

// builtinNativeModules are modules compiled into the interpreter; they
// never have a source file anywhere on disk.
var builtinNativeModules = map[string]struct{}{
	"sys": {}, "builtins": {}, "_thread": {}, "gc": {}, "marshal": {},
	"posix": {}, "nt": {}, "errno": {}, "itertools": {}, "time": {},
	"math": {}, "cmath": {}, "array": {}, "binascii": {}, "select": {},
	"mmap": {}, "socket": {}, "struct": {}, "zlib": {}, "fcntl": {},
	"signal": {}, "faulthandler": {}, "atexit": {},
}

// DetectEnvironment infers the environment for a project root. Version
// detection checks .python-version first, then pyproject.toml's
// requires-python, then defaults to 3.12. A virtual environment is found
// through $VIRTUAL_ENV or a .venv/venv directory carrying pyvenv.cfg.
func DetectEnvironment(projectRoot string) Environment {
	env := Environment{Version: detectVersion(projectRoot)}

	venv := os.Getenv("VIRTUAL_ENV")
	if venv == "" {
		for _, candidate := range []string{".venv", "venv"} {
			dir := filepath.Join(projectRoot, candidate)
			if _, err := os.Stat(filepath.Join(dir, "pyvenv.cfg")); err == nil {
				venv = dir
				break
			}
		}
	}

	if venv != "" {
		env.SitePackages = sitePackagesDirs(venv, env.Version)
		if home := venvHome(venv); home != "" {
			env.StdlibDirs = stdlibDirs(home, env.Version)
		}
	}
	for _, prefix := range []string{"/usr/lib", "/usr/local/lib"} {
		dir := filepath.Join(prefix, "python"+env.Version)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			env.StdlibDirs = append(env.StdlibDirs, dir)
		}
	}
	return env
}

// detectVersion checks .python-version then pyproject.toml, defaulting
// to 3.12.
func detectVersion(projectRoot string) string {
	if data, err := os.ReadFile(filepath.Join(projectRoot, ".python-version")); err == nil {
		if v := majorMinor(strings.TrimSpace(string(data))); v != "" {
			return v
		}
	}
	if v := versionFromPyproject(filepath.Join(projectRoot, "pyproject.toml")); v != "" {
		return v
	}
	return "3.12"
}

var (
	requiresPythonRe = regexp.MustCompile(`requires-python\s*=\s*"[><=~^!\s]*(\d+\.\d+)`)
	poetryPythonRe   = regexp.MustCompile(`^\s*python\s*=\s*"[\^~>=<\s]*(\d+\.\d+)`)
)

func versionFromPyproject(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if m := requiresPythonRe.FindStringSubmatch(line); len(m) > 1 {
			return m[1]
		}
		if m := poetryPythonRe.FindStringSubmatch(line); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

// majorMinor trims "3.12.4" to "3.12".
func majorMinor(v string) string {
	parts := strings.Split(v, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// venvHome reads the "home" key of pyvenv.cfg: the bin directory of the
// interpreter the environment was created from.
func venvHome(venv string) string {
	file, err := os.Open(filepath.Join(venv, "pyvenv.cfg"))
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), "=")
		if found && strings.TrimSpace(key) == "home" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func sitePackagesDirs(venv, version string) []string {
	var dirs []string
	for _, candidate := range []string{
		filepath.Join(venv, "lib", "python"+version, "site-packages"),
		filepath.Join(venv, "Lib", "site-packages"),
	} {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			dirs = append(dirs, candidate)
		}
	}
	return dirs
}

func stdlibDirs(home, version string) []string {
	var dirs []string
	candidate := filepath.Join(filepath.Dir(home), "lib", "python"+version)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		dirs = append(dirs, candidate)
	}
	return dirs
}

// Locator maps dotted module paths to files, searching project roots,
// then the standard library, then site-packages.
type Locator struct {
	ProjectRoots []string
	Env          Environment
}

// nativeSuffixes are the compiled-extension filename endings checked when
// no source file exists.
var nativeSuffixes = []string{".so", ".pyd"}

// Locate finds the module's file and kind. ok is false when nothing on
// any search path provides the module; callers then treat the import as
// native-opaque.
func (l *Locator) Locate(modulePath string) (string, model.ModuleKind, bool) {
	if _, ok := builtinNativeModules[modulePath]; ok {
		return "", model.ModuleNative, true
	}

	rel := filepath.FromSlash(strings.ReplaceAll(modulePath, ".", "/"))

	if path, ok := findSource(l.ProjectRoots, rel); ok {
		return path, model.ModuleProject, true
	}
	if path, ok := findSource(l.Env.StdlibDirs, rel); ok {
		return path, model.ModuleStdlibSource, true
	}
	if path, ok := findSource(l.Env.SitePackages, rel); ok {
		return path, model.ModuleSitePackages, true
	}

	roots := append(append(append([]string{}, l.ProjectRoots...), l.Env.StdlibDirs...), l.Env.SitePackages...)
	if findNative(roots, rel) {
		return "", model.ModuleNative, true
	}
	return "", model.ModuleNative, false
}

func findSource(roots []string, rel string) (string, bool) {
	for _, root := range roots {
		for _, candidate := range []string{
			filepath.Join(root, rel+".py"),
			filepath.Join(root, rel, "__init__.py"),
		} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
		}
	}
	return "", false
}

// findNative checks for a compiled extension: <name>.so, <name>.pyd, or
// the tagged form <name>.cpython-312-x86_64-linux-gnu.so.
func findNative(roots []string, rel string) bool {
	dir, base := filepath.Split(rel)
	for _, root := range roots {
		parent := filepath.Join(root, dir)
		entries, err := os.ReadDir(parent)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if name != base && !strings.HasPrefix(name, base+".") {
				continue
			}
			for _, suffix := range nativeSuffixes {
				if strings.HasSuffix(name, suffix) {
					return true
				}
			}
		}
	}
	return false
}
