// Package config provides YAML configuration loading with environment variable override.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads a YAML configuration file into the given struct, then applies
// environment variable overrides declared with `env` struct tags.
// An empty path skips the file and applies only the overrides.
func Load(path string, out any) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}

		// Expand environment variables in the YAML
		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	return ApplyEnv(out)
}

// LoadOrDefault is Load that treats a missing file as empty.
// Environment overrides are applied either way.
func LoadOrDefault(path string, out any) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return ApplyEnv(out)
	}
	return Load(path, out)
}

// ApplyEnv sets struct fields from environment variables named by their `env` tag.
// Nested structs are walked recursively. A set variable that cannot be parsed
// into its field type is an error.
func ApplyEnv(v any) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("config: ApplyEnv needs a non-nil pointer, got %T", v)
	}
	val = val.Elem()
	if val.Kind() != reflect.Struct {
		return nil
	}
	return applyEnvOverrides(val)
}

func applyEnvOverrides(val reflect.Value) error {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := val.Field(i)

		if !field.IsExported() {
			continue
		}

		// Recurse into struct fields
		if fieldVal.Kind() == reflect.Struct {
			if err := applyEnvOverrides(fieldVal); err != nil {
				return err
			}
			continue
		}

		envTag := field.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envVal, ok := os.LookupEnv(envTag)
		if !ok || !fieldVal.CanSet() {
			continue
		}

		if err := setField(fieldVal, strings.TrimSpace(envVal)); err != nil {
			return fmt.Errorf("env %s: %w", envTag, err)
		}
	}
	return nil
}

func setField(fieldVal reflect.Value, raw string) error {
	if fieldVal.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fieldVal.SetInt(int64(d))
		return nil
	}

	switch fieldVal.Kind() {
	case reflect.String:
		fieldVal.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fieldVal.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		fieldVal.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fieldVal.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", fieldVal.Kind())
	}
	return nil
}
