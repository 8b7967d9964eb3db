package envconf

import (
	"encoding"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"
)

var (
	ErrMissingRequired = errors.New("missing required environment variable")
	ErrUnsupportedType = errors.New("unsupported field type")
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load fills the exported fields of the struct dst points to from the
// environment. A field tagged env:"NAME" is required unless it also carries
// a default:"..." tag, which is used when NAME is unset. Untagged struct
// fields are loaded recursively.
//
// Every missing or malformed variable is reported, joined into one error.
func Load(dst any) error {
	if dst == nil {
		return errors.New("destination is nil")
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return errors.New("destination must be a non-nil pointer to a struct")
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return errors.New("destination must point to a struct")
	}

	return load(v)
}

func load(v reflect.Value) error {
	var errs []error

	t := v.Type()
	for i := range v.NumField() {
		sf := t.Field(i)
		fv := v.Field(i)

		if !sf.IsExported() {
			continue
		}

		tag := sf.Tag.Get("env")
		if tag == "" {
			if fv.Kind() == reflect.Struct {
				errs = append(errs, load(fv))
			}

			continue
		}

		raw, ok := os.LookupEnv(tag)
		if !ok {
			raw, ok = sf.Tag.Lookup("default")
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %s (field %q)", ErrMissingRequired, tag, sf.Name))
				continue
			}

			if raw == "" {
				continue
			}
		}

		err := setValue(fv, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %q for field %q: %w", tag, sf.Name, err))
		}
	}

	return errors.Join(errs...)
}

// setValue handles the kinds config structs use: TextUnmarshaler (e.g.
// slog.Level), string, time.Duration, signed and unsigned integers.
func setValue(fv reflect.Value, raw string) error {
	u, ok := fv.Addr().Interface().(encoding.TextUnmarshaler)
	if ok {
		err := u.UnmarshalText([]byte(raw))
		if err != nil {
			return fmt.Errorf("unmarshal text: %w", err)
		}

		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if fv.Type() == durationType {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("parse duration: %w", err)
			}

			fv.SetInt(int64(d))

			return nil
		}

		i, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse int: %w", err)
		}

		fv.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse uint: %w", err)
		}

		fv.SetUint(n)
	default:
		return fmt.Errorf("%s: %w", fv.Type(), ErrUnsupportedType)
	}

	return nil
}
