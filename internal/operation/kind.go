package operation

import (
	"fmt"
	"strings"
)

// Kind identifies a system-management action.
type Kind string

const (
	KindUpdate          Kind = "update"
	KindRollback        Kind = "rollback"
	KindListGenerations Kind = "list_generations"
	KindBuild           Kind = "build"
	KindInstall         Kind = "install"
	KindRemove          Kind = "remove"
	KindSearch          Kind = "search"
	KindRepair          Kind = "repair"
	KindDryRun          Kind = "dry_run"
)

// AllKinds lists every supported kind in a stable order.
var AllKinds = []Kind{
	KindUpdate,
	KindRollback,
	KindListGenerations,
	KindBuild,
	KindInstall,
	KindRemove,
	KindSearch,
	KindRepair,
	KindDryRun,
}

// ParseKind accepts the canonical lower-case name as well as upper-case and
// hyphenated spellings ("LIST_GENERATIONS", "dry-run").
func ParseKind(s string) (Kind, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, k := range AllKinds {
		if string(k) == normalized {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown operation kind %q", s)
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	_, ok := schemas[k]
	return ok
}

// RequiresPrivilege reports whether the kind mutates system state and must run
// in an elevated context.
func (k Kind) RequiresPrivilege() bool {
	switch k {
	case KindUpdate, KindRollback, KindInstall, KindRemove, KindRepair:
		return true
	default:
		return false
	}
}

// IsIdempotentRead reports whether results of the kind may be cached.
func (k Kind) IsIdempotentRead() bool {
	switch k {
	case KindListGenerations, KindSearch, KindDryRun:
		return true
	default:
		return false
	}
}

// IsMutation reports whether a successful execution can change what reads observe.
func (k Kind) IsMutation() bool {
	return k.RequiresPrivilege()
}

// IsLongRunning reports whether the kind realises a system closure and
// therefore gets the long executor timeout.
func (k Kind) IsLongRunning() bool {
	switch k {
	case KindUpdate, KindBuild:
		return true
	default:
		return false
	}
}
