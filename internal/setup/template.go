package setup

import (
	"errors"
	"fmt"
	"os"
	"reflect"
)

// ExpandTemplates rewrites, in place, every string field of the struct
// pointed to by in that carries a `template` tag (`template:"-"` opts out).
// Nested structs, pointers to structs and slices of either are walked
// without needing the tag; map[string]string values are always expanded.
func ExpandTemplates[T any](in *T, variables map[string]string) error {
	if in == nil {
		return nil
	}
	v := reflect.ValueOf(in).Elem()
	if v.Kind() != reflect.Struct && v.Kind() != reflect.Slice {
		return fmt.Errorf("ExpandTemplates expects *struct or *[]struct; got *%s", v.Type())
	}
	return expandValue(v, false, variables)
}

// expandValue expands v. tagged reports whether the field holding v opted
// into string expansion.
func expandValue(v reflect.Value, tagged bool, variables map[string]string) error {
	switch v.Kind() {
	case reflect.String:
		if !tagged {
			return nil
		}
		expanded, err := Expand(v.String(), variables)
		if err != nil {
			return err
		}
		v.SetString(expanded)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return expandValue(v.Elem(), tagged, variables)

	case reflect.Struct:
		typ := v.Type()
		for i := range typ.NumField() {
			sf := typ.Field(i)
			if !sf.IsExported() {
				continue
			}
			tag, ok := sf.Tag.Lookup("template")
			if err := expandValue(v.Field(i), ok && tag != "-", variables); err != nil {
				return err
			}
		}

	case reflect.Slice:
		for i := range v.Len() {
			if err := expandValue(v.Index(i), tagged, variables); err != nil {
				return err
			}
		}

	case reflect.Map:
		if v.IsNil() || v.Type().Key().Kind() != reflect.String || v.Type().Elem().Kind() != reflect.String {
			return nil
		}
		expanded, err := ExpandMap(v.Convert(reflect.TypeFor[map[string]string]()).Interface().(map[string]string), variables)
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(expanded).Convert(v.Type()))
	}
	return nil
}

// Expand replaces ${VAR} references in value. Every referenced variable must
// be present in variables; all missing names are reported together.
func Expand(value string, variables map[string]string) (string, error) {
	var errs error

	result := os.Expand(value, func(key string) string {
		if val, ok := variables[key]; ok {
			return val
		}
		errs = errors.Join(errs, fmt.Errorf("environment variable %q is not in the allowed list", key))
		return ""
	})

	if errs != nil {
		return "", errs
	}
	return result, nil
}

// ExpandMap expands all values of a map into a new map.
func ExpandMap(values map[string]string, variables map[string]string) (map[string]string, error) {
	if values == nil {
		return nil, nil
	}

	result := make(map[string]string, len(values))
	var errs error
	for k, v := range values {
		expanded, err := Expand(v, variables)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		result[k] = expanded
	}

	if errs != nil {
		return nil, errs
	}
	return result, nil
}

// AllowedVariables collects the values of the allowed environment variables
// that are set.
func AllowedVariables(allowed []string) map[string]string {
	vars := make(map[string]string, len(allowed))
	for _, name := range allowed {
		if val, ok := os.LookupEnv(name); ok {
			vars[name] = val
		}
	}
	return vars
}
