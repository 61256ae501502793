package operation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Options maps option names to primitive values (string, bool, integer).
type Options map[string]any

// Operation is a request to perform one system-management action. It is
// immutable: constructors and accessors copy the options map.
type Operation struct {
	kind    Kind
	options Options
}

// New creates an Operation. Options are copied; validation happens in Canonical.
func New(kind Kind, options map[string]any) Operation {
	copied := make(Options, len(options))
	for k, v := range options {
		copied[k] = v
	}
	return Operation{kind: kind, options: copied}
}

// Kind returns the operation kind.
func (o Operation) Kind() Kind { return o.kind }

// Options returns a copy of the operation options.
func (o Operation) Options() Options {
	copied := make(Options, len(o.options))
	for k, v := range o.options {
		copied[k] = v
	}
	return copied
}

// Option returns a single option value.
func (o Operation) Option(name string) (any, bool) {
	v, ok := o.options[name]
	return v, ok
}

// String returns a string option or "" when absent or not a string.
func (o Operation) String(name string) string {
	s, _ := o.options[name].(string)
	return s
}

// Bool returns a bool option or false when absent or not a bool.
func (o Operation) Bool(name string) bool {
	b, _ := o.options[name].(bool)
	return b
}

// Int returns an integer option of a canonical Operation.
func (o Operation) Int(name string) (int64, bool) {
	i, ok := o.options[name].(int64)
	return i, ok
}

// RequiresPrivilege is derived from the kind.
func (o Operation) RequiresPrivilege() bool { return o.kind.RequiresPrivilege() }

// IsIdempotentRead is derived from the kind.
func (o Operation) IsIdempotentRead() bool { return o.kind.IsIdempotentRead() }

// Canonical validates the options against the kind's schema and returns an
// equivalent Operation whose option values have canonical types. The returned
// error is always a *ValidationError.
func (o Operation) Canonical() (Operation, error) {
	opts, err := canonicalize(o.kind, o.options)
	if err != nil {
		return Operation{}, err
	}
	return Operation{kind: o.kind, options: opts}, nil
}

// CacheKey returns "kind?k1=v1&k2=v2" with keys sorted. Two canonical
// operations with equivalent options produce the same key.
func (o Operation) CacheKey() string {
	keys := make([]string, 0, len(o.options))
	for k := range o.options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(o.kind))
	for i, k := range keys {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatValue(o.options[k]))
	}
	return b.String()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Describe renders a short human description of what the operation attempts,
// used as the first part of failure messages.
func (o Operation) Describe() string {
	switch o.kind {
	case KindUpdate:
		if o.Bool(OptUpgrade) {
			return "upgrade and switch the system configuration"
		}
		return "update the system configuration"
	case KindRollback:
		if n, ok := o.Int(OptGenerationNumber); ok {
			return fmt.Sprintf("roll back to generation %d", n)
		}
		return "roll back to the previous generation"
	case KindListGenerations:
		return "list system generations"
	case KindBuild:
		return "build the system configuration"
	case KindInstall:
		return fmt.Sprintf("install %s", o.String(OptPackageName))
	case KindRemove:
		return fmt.Sprintf("remove %s", o.String(OptPackageName))
	case KindSearch:
		return fmt.Sprintf("search packages for %q", o.String(OptQuery))
	case KindRepair:
		return "repair the Nix store"
	case KindDryRun:
		return "preview the system configuration change"
	default:
		return fmt.Sprintf("run %s", o.kind)
	}
}

type wireOperation struct {
	Kind    Kind    `json:"kind"`
	Options Options `json:"options,omitempty"`
}

// MarshalJSON encodes the operation as {"kind": ..., "options": {...}}.
func (o Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireOperation{Kind: o.kind, Options: o.options})
}

// UnmarshalJSON decodes numbers as json.Number so that Canonical can
// distinguish integers from fractional values.
func (o *Operation) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var w struct {
		Kind    string         `json:"kind"`
		Options map[string]any `json:"options"`
	}
	if err := dec.Decode(&w); err != nil {
		return err
	}
	kind, err := ParseKind(w.Kind)
	if err != nil {
		return err
	}
	*o = New(kind, w.Options)
	return nil
}
