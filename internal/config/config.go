// Package config loads tagged option structs from TOML, environment and CLI
// flags, and watches the configuration file for changes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smazurov/fakewebcam/internal/logging"
)

// EnvPrefix is prepended to every `env` tag.
const EnvPrefix = "FAKEWEBCAM_"

// LoadConfig fills opts, a pointer to a struct, with precedence CLI flags > env
// vars > config file. Fields carry `toml:"section.key"` and `env:"KEY"` tags;
// the file path comes from the string field named Config. A missing file is not
// an error. Flags cmd reports as changed are left alone.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: want pointer to struct, got %T", opts)
	}
	v = v.Elem()
	t := v.Type()

	changed := changedFlags(cmd)
	skip := func(field reflect.StructField) bool {
		return changed[fieldNameToFlag(field.Name)]
	}

	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String && f.String() != "" {
		data, err := readTOML(f.String())
		if err != nil {
			return err
		}
		for i := range t.NumField() {
			field := t.Field(i)
			path := field.Tag.Get("toml")
			if path == "" || skip(field) {
				continue
			}
			if value := getNestedValue(data, path); value != nil {
				setFieldValue(v.Field(i), value)
			}
		}
	}

	for i := range t.NumField() {
		field := t.Field(i)
		key := field.Tag.Get("env")
		if key == "" || skip(field) {
			continue
		}
		if envValue, ok := os.LookupEnv(EnvPrefix + key); ok && envValue != "" {
			setFieldValueFromString(v.Field(i), envValue)
		}
	}
	return nil
}

// readTOML parses the file at path. A missing file yields an empty table.
func readTOML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var table map[string]any
	if err := toml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return table, nil
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	})
	return changed
}

// fieldNameToFlag converts a struct field name to a CLI flag name. Runs of
// capitals are kept together as one word.
// Example: "LoggingLevel" -> "logging-level", "LoggingAPI" -> "logging-api".
func fieldNameToFlag(fieldName string) string {
	runes := []rune(fieldName)
	var result []rune
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if !unicode.IsUpper(prev) || nextLower {
				result = append(result, '-')
			}
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue retrieves a value from nested tables using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current[parts[len(parts)-1]]
}

var durationType = reflect.TypeFor[time.Duration]()

// setFieldValue assigns a decoded TOML value. Mismatched types are ignored.
func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}

	if field.Type() == durationType {
		if s, ok := value.(string); ok {
			if d, err := time.ParseDuration(s); err == nil {
				field.SetInt(int64(d))
			}
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		if arr, ok := value.([]any); ok {
			slice := make([]string, 0, len(arr))
			for _, item := range arr {
				if s, isStr := item.(string); isStr {
					slice = append(slice, s)
				}
			}
			field.Set(reflect.ValueOf(slice))
		}
	}
}

// setFieldValueFromString assigns an environment value. Unparseable values are
// ignored. Slices are comma-separated.
func setFieldValueFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}

	if field.Type() == durationType {
		if d, err := time.ParseDuration(value); err == nil {
			field.SetInt(int64(d))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Float64:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
}

// LoadLoggingConfig reads the [logging] table of the file at path. Keys other
// than level, format and journal are module levels. A missing file or table
// yields info/text defaults.
func LoadLoggingConfig(path string) (logging.Config, error) {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if path == "" {
		return cfg, nil
	}

	table, err := readTOML(path)
	if err != nil {
		return cfg, err
	}
	section, ok := table["logging"].(map[string]any)
	if !ok {
		return cfg, nil
	}

	for key, value := range section {
		switch key {
		case "journal":
			if b, isBool := value.(bool); isBool {
				cfg.Journal = b
			}
		case "level", "format":
			s, isStr := value.(string)
			if !isStr {
				return cfg, fmt.Errorf("logging.%s: want string, got %T", key, value)
			}
			if key == "level" {
				cfg.Level = s
			} else {
				cfg.Format = s
			}
		default:
			if s, isStr := value.(string); isStr {
				cfg.Modules[key] = s
			}
		}
	}
	return cfg, nil
}
