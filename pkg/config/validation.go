package config

import (
	"reflect"
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

// Validator is implemented by configuration structs with checks beyond
// `required` tags, such as the engine's choice of stores. Load calls it
// after every `required` field is present. A returned *sserr.Error passes
// through unchanged; anything else is wrapped with [sserr.CodeValidation].
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if missing := missingRequired(rv, "", nil); len(missing) > 0 {
		return sserr.Newf(sserr.CodeValidationRequired,
			"config: required fields are empty: %s", strings.Join(missing, ", ")).
			WithDetail("fields", missing)
	}

	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	if _, ok := sserr.AsError(err); ok {
		return err
	}
	return sserr.Wrap(err, sserr.CodeValidation, "config: validation failed")
}

// missingRequired appends the dotted path of every empty `required:"true"`
// field under rv, e.g. "Postgres.Database".
func missingRequired(rv reflect.Value, path string, missing []string) []string {
	rt := rv.Type()
	for i := range rt.NumField() {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		name := sf.Name
		if path != "" {
			name = path + "." + sf.Name
		}
		switch {
		case field.Kind() == reflect.Struct:
			missing = missingRequired(field, name, missing)
		case sf.Tag.Get("required") == "true" && field.IsZero():
			missing = append(missing, name)
		}
	}
	return missing
}
