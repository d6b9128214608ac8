package manifest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrInternalField is returned when a value meant for export still carries
// a field tagged view:"internal" or view:"transient".
var ErrInternalField = errors.New("internal field in export")

// CheckVisibility walks v and reports the first populated field whose view
// tag keeps it inside the instance.
func CheckVisibility(v any) error {
	return checkValue(reflect.ValueOf(v), "")
}

func checkValue(v reflect.Value, path string) error {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkValue(v.Elem(), path)

	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			if err := checkValue(v.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}

	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkValue(iter.Value(), fmt.Sprintf("%s[%v]", path, iter.Key())); err != nil {
				return err
			}
		}

	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}

			fieldPath := path
			if !f.Anonymous {
				fieldPath = joinPath(path, jsonName(f))
			}

			switch f.Tag.Get("view") {
			case "internal", "transient":
				if !v.Field(i).IsZero() {
					return fmt.Errorf("%w: %s", ErrInternalField, fieldPath)
				}
				continue
			}

			if err := checkValue(v.Field(i), fieldPath); err != nil {
				return err
			}
		}
	}
	return nil
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
