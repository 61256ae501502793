package operation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Well-known option names.
const (
	OptUpgrade          = "upgrade"
	OptFlake            = "flake"
	OptGenerationNumber = "generation_number"
	OptForce            = "force"
	OptConfirm          = "confirm"
	OptLimit            = "limit"
	OptConfigPath       = "config_path"
	OptPackageName      = "package_name"
	OptQuery            = "query"
	OptCheckContents    = "check_contents"
)

// FieldType is the canonical type of an option value.
type FieldType int

const (
	FieldString FieldType = iota
	FieldBool
	FieldInt
	// FieldPath is a string that names a filesystem location.
	FieldPath
)

func (t FieldType) String() string {
	switch t {
	case FieldBool:
		return "bool"
	case FieldInt:
		return "int"
	case FieldPath:
		return "path"
	default:
		return "string"
	}
}

// Field describes one permitted option. Rules uses validator tag syntax and is
// applied to the canonicalised value.
type Field struct {
	Type     FieldType
	Required bool
	Rules    string
}

// Schema maps option names to their field description.
type Schema map[string]Field

var schemas = map[Kind]Schema{
	KindUpdate: {
		OptUpgrade: {Type: FieldBool},
		OptFlake:   {Type: FieldPath, Rules: "max=4096"},
	},
	KindRollback: {
		OptGenerationNumber: {Type: FieldInt, Rules: "gt=0"},
		OptForce:            {Type: FieldBool},
		OptConfirm:          {Type: FieldBool},
	},
	KindListGenerations: {
		OptLimit: {Type: FieldInt, Rules: "gte=0,lte=10000"},
	},
	KindBuild: {
		OptConfigPath: {Type: FieldPath, Rules: "max=4096"},
		OptFlake:      {Type: FieldPath, Rules: "max=4096"},
	},
	KindInstall: {
		OptPackageName: {Type: FieldString, Required: true, Rules: "required,max=128"},
		OptConfirm:     {Type: FieldBool},
	},
	KindRemove: {
		OptPackageName: {Type: FieldString, Required: true, Rules: "required,max=128"},
		OptForce:       {Type: FieldBool},
		OptConfirm:     {Type: FieldBool},
	},
	KindSearch: {
		OptQuery: {Type: FieldString, Required: true, Rules: "required,max=256"},
		OptLimit: {Type: FieldInt, Rules: "gte=0,lte=1000"},
	},
	KindRepair: {
		OptCheckContents: {Type: FieldBool},
	},
	KindDryRun: {
		OptConfigPath: {Type: FieldPath, Rules: "max=4096"},
		OptFlake:      {Type: FieldPath, Rules: "max=4096"},
		OptUpgrade:    {Type: FieldBool},
	},
}

var validate = validator.New()

// canonicalize checks options against the kind's schema and returns a new map
// holding canonical value types (string, bool, int64).
func canonicalize(kind Kind, options Options) (Options, error) {
	schema, ok := schemas[kind]
	if !ok {
		return nil, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unsupported operation kind %q", kind)}
	}

	out := make(Options, len(options))
	for name, raw := range options {
		field, known := schema[name]
		if !known {
			return nil, &ValidationError{Field: name, Reason: fmt.Sprintf("unknown option for %s", kind)}
		}
		value, err := coerce(field.Type, raw)
		if err != nil {
			return nil, &ValidationError{Field: name, Reason: err.Error()}
		}
		if field.Rules != "" {
			if err := validate.Var(value, field.Rules); err != nil {
				return nil, &ValidationError{Field: name, Reason: describeRuleFailure(err)}
			}
		}
		out[name] = value
	}

	for name, field := range schema {
		if _, present := out[name]; field.Required && !present {
			return nil, &ValidationError{Field: name, Reason: fmt.Sprintf("is required for %s", kind)}
		}
	}
	return out, nil
}

func coerce(t FieldType, raw any) (any, error) {
	switch t {
	case FieldString, FieldPath:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", t, raw)
		}
		return s, nil
	case FieldBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("expected bool, got %q", v)
			}
			return b, nil
		}
		return nil, fmt.Errorf("expected bool, got %T", raw)
	case FieldInt:
		return coerceInt(raw)
	}
	return nil, fmt.Errorf("unsupported field type %d", t)
}

func coerceInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, errors.New("integer out of range")
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, errors.New("integer out of range")
		}
		return int64(v), nil
	case float32:
		return integralFloat(float64(v))
	case float64:
		return integralFloat(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected int, got %q", v.String())
		}
		return integralFloat(f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected int, got %q", v)
		}
		return i, nil
	}
	return 0, fmt.Errorf("expected int, got %T", raw)
}

func integralFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("expected int, got %v", f)
	}
	return int64(f), nil
}

func describeRuleFailure(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}
