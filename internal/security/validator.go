package security

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nixmate/internal/operation"
	"nixmate/pkg/logging"
)

// Validator checks operations before execution.
type Validator struct {
	privilege    PrivilegeChecker
	allowedRoots []string
}

// Option configures a Validator.
type Option func(*Validator)

// WithPrivilegeChecker replaces the process privilege check.
func WithPrivilegeChecker(p PrivilegeChecker) Option {
	return func(v *Validator) { v.privilege = p }
}

// WithAllowedRoots sets the directories path options must resolve into.
func WithAllowedRoots(roots ...string) Option {
	return func(v *Validator) {
		v.allowedRoots = v.allowedRoots[:0]
		for _, r := range roots {
			v.allowedRoots = append(v.allowedRoots, filepath.Clean(r))
		}
	}
}

// NewValidator creates a Validator using the process privilege and /etc/nixos
// as the only allowed root unless overridden.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		privilege:    ProcessPrivilege{},
		allowedRoots: []string{"/etc/nixos"},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns nil or a *operation.ValidationError. The operation is
// expected to be canonical (see operation.Operation.Canonical).
func (v *Validator) Validate(op operation.Operation) error {
	if err := v.validate(op); err != nil {
		logging.Debug("Security", "Rejected %s: %v", op.Kind(), err)
		return err
	}
	return nil
}

func (v *Validator) validate(op operation.Operation) error {
	opts := op.Options()

	names := make([]string, 0, len(opts))
	for name := range opts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s, ok := opts[name].(string)
		if !ok {
			continue
		}
		if what, found := findDenied(s); found {
			return &operation.ValidationError{Field: name, Reason: fmt.Sprintf("contains forbidden %s", what)}
		}
	}

	if name, ok := opts[operation.OptPackageName].(string); ok && !packageNamePattern.MatchString(name) {
		return &operation.ValidationError{Field: operation.OptPackageName, Reason: "must contain only letters, digits and . _ + -"}
	}
	if q, ok := opts[operation.OptQuery].(string); ok && !queryPattern.MatchString(q) {
		return &operation.ValidationError{Field: operation.OptQuery, Reason: "must contain only letters, digits, spaces and . _ + -"}
	}

	for _, field := range []string{operation.OptConfigPath, operation.OptFlake} {
		p, ok := opts[field].(string)
		if !ok {
			continue
		}
		if field == operation.OptFlake {
			var err error
			if p, err = splitFlakeRef(p); err != nil {
				return &operation.ValidationError{Field: field, Reason: err.Error()}
			}
		}
		if err := v.checkPath(p); err != nil {
			return &operation.ValidationError{Field: field, Reason: err.Error()}
		}
	}

	if isDestructive(op) && op.Bool(operation.OptForce) && !op.Bool(operation.OptConfirm) {
		return &operation.ValidationError{
			Field:  operation.OptConfirm,
			Reason: fmt.Sprintf("force on %s requires confirm=true", op.Kind()),
		}
	}

	if op.RequiresPrivilege() && !v.privilege.Elevated() {
		return &operation.ValidationError{
			Reason: fmt.Sprintf("insufficient privilege: %s requires root", op.Kind()),
			Err:    operation.ErrInsufficientPrivilege,
		}
	}
	return nil
}

// isDestructive covers removals and rollbacks to an explicit generation.
func isDestructive(op operation.Operation) bool {
	switch op.Kind() {
	case operation.KindRemove:
		return true
	case operation.KindRollback:
		_, explicit := op.Int(operation.OptGenerationNumber)
		return explicit
	}
	return false
}

// splitFlakeRef accepts "/path/to/flake" or "/path/to/flake#host" and returns
// the path part. Remote flake references are not accepted.
func splitFlakeRef(ref string) (string, error) {
	path, attr, hasAttr := strings.Cut(ref, "#")
	if hasAttr && !flakeAttrPattern.MatchString(attr) {
		return "", fmt.Errorf("flake attribute %q is not a valid host name", attr)
	}
	if strings.Contains(path, ":") {
		return "", fmt.Errorf("only local flake paths are accepted")
	}
	return path, nil
}

func (v *Validator) checkPath(p string) error {
	if p == "" {
		return fmt.Errorf("must not be empty")
	}
	for _, segment := range strings.Split(filepath.ToSlash(p), "/") {
		if segment == ".." {
			return fmt.Errorf("must not contain '..'")
		}
	}
	if !filepath.IsAbs(p) {
		return fmt.Errorf("must be an absolute path")
	}

	resolved := filepath.Clean(p)
	if real, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = real
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("cannot be resolved: %v", err)
	}

	for _, root := range v.allowedRoots {
		if resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%s is outside the allowed roots (%s)", resolved, strings.Join(v.allowedRoots, ", "))
}
