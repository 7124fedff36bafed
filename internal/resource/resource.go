package resource

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrDirUnavailable is returned when the bundled-resource directory cannot be determined.
var ErrDirUnavailable = errors.New("resource directory unavailable")

// Paths pairs the runtime executable with the server entry point. Both are absolute.
type Paths struct {
	Executable string `json:"executable"`
	EntryPoint string `json:"entry_point"`
}

// Locator maps logical resource identifiers such as "binaries/node/node"
// to absolute paths inside the application's resource directory.
type Locator struct {
	// Dir overrides the resource directory when non-empty.
	Dir string

	executable func() (string, error)
	goos       string
}

// New returns a Locator rooted at dir, or at the directory derived from the
// running executable when dir is empty.
func New(dir string) *Locator {
	return &Locator{Dir: dir, executable: os.Executable, goos: runtime.GOOS}
}

// ResourceDir returns the absolute resource directory.
func (l *Locator) ResourceDir() (string, error) {
	if l.Dir != "" {
		abs, err := filepath.Abs(l.Dir)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDirUnavailable, err)
		}
		return abs, nil
	}
	exeFn := l.executable
	if exeFn == nil {
		exeFn = os.Executable
	}
	exe, err := exeFn()
	if err != nil || exe == "" {
		return "", fmt.Errorf("%w: cannot locate executable: %v", ErrDirUnavailable, err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	dir := filepath.Dir(exe)
	goos := l.goos
	if goos == "" {
		goos = runtime.GOOS
	}
	// macOS bundles keep resources beside, not under, the executable directory.
	if goos == "darwin" && filepath.Base(dir) == "MacOS" && filepath.Base(filepath.Dir(dir)) == "Contents" {
		dir = filepath.Join(filepath.Dir(dir), "Resources")
	}
	return filepath.Abs(dir)
}

// Resolve joins rel (slash separated) under the resource directory.
// It does not check that the result exists.
func (l *Locator) Resolve(rel string) (string, error) {
	dir, err := l.ResourceDir()
	if err != nil {
		return "", err
	}
	clean := path.Clean("/" + strings.ReplaceAll(rel, "\\", "/"))
	return filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// ExecutableName returns the runtime executable file name for goos.
func ExecutableName(name, goos string) string {
	if goos == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}
	return name
}

// ExecutablePath is the logical path of the bundled runtime: binaries/<runtime>/<exe>.
func ExecutablePath(runtimeName, exe string) string {
	return path.Join("binaries", runtimeName, exe)
}

// EntryPointPath is the logical path of the server entry point: binaries/server/dist/<entry>.
func EntryPointPath(entry string) string {
	return path.Join("binaries", "server", "dist", entry)
}
