package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathValidator confines template ids and the files a template names to
// the templates root.
type PathValidator struct {
	root string
}

// NewPathValidator creates a new path validator for the given root
func NewPathValidator(root string) (*PathValidator, error) {
	if root == "" {
		return nil, fmt.Errorf("templates directory cannot be empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve templates directory: %w", err)
	}
	return &PathValidator{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute templates root.
func (v *PathValidator) Root() string {
	return v.root
}

// ValidateID rejects ids that are empty or would leave the templates root.
func (v *PathValidator) ValidateID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("invalid template id: %q", id)
	case strings.ContainsAny(id, `/\`+"\x00"):
		return fmt.Errorf("template id must not contain path separators: %q", id)
	}
	return nil
}

// Resolve joins the relative path parts onto base and checks that the
// result, with symlinks evaluated, stays inside the templates root.
func (v *PathValidator) Resolve(base string, parts ...string) (string, error) {
	p := filepath.Join(append([]string{base}, parts...)...)
	if !filepath.IsAbs(p) {
		p = filepath.Join(v.root, p)
	}
	p = filepath.Clean(strings.ReplaceAll(p, "\x00", ""))

	ok, err := v.IsWithinRoot(p)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("path is outside templates directory: %s", p)
	}
	return p, nil
}

// IsWithinRoot reports whether path lies inside the templates root. Both
// the path and the root are compared as given and with symlinks resolved.
func (v *PathValidator) IsWithinRoot(path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve path: %w", err)
	}
	cleanPath := filepath.Clean(absPath)

	realPath := evalExisting(cleanPath)
	realRoot := evalExisting(v.root)

	within := func(p, dir string) bool {
		return p == dir || strings.HasPrefix(p, dir+string(filepath.Separator))
	}
	pathOk := within(cleanPath, v.root) || within(cleanPath, realRoot)
	realOk := within(realPath, v.root) || within(realPath, realRoot)

	return pathOk && realOk, nil
}

// evalExisting resolves symlinks in the longest existing prefix of path
// and appends the remainder unchanged.
func evalExisting(path string) string {
	for cur := path; ; cur = filepath.Dir(cur) {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			rest, err := filepath.Rel(cur, path)
			if err != nil {
				return path
			}
			return filepath.Join(resolved, rest)
		}
		if filepath.Dir(cur) == cur {
			return path
		}
	}
}

// exists reports whether path names an existing entry.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
