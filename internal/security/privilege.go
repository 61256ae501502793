package security

import "os"

// PrivilegeChecker reports whether the current execution context is elevated.
type PrivilegeChecker interface {
	Elevated() bool
}

// PrivilegeFunc adapts a function to PrivilegeChecker.
type PrivilegeFunc func() bool

// Elevated calls f.
func (f PrivilegeFunc) Elevated() bool { return f() }

// ProcessPrivilege treats an effective UID of 0 as elevated.
type ProcessPrivilege struct{}

// Elevated reports whether the process runs as root.
func (ProcessPrivilege) Elevated() bool {
	return os.Geteuid() == 0
}
