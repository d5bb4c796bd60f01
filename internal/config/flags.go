package config

import (
	"reflect"
	"strings"

	"github.com/spf13/pflag"
)

// flagField describes a config field exposed as a command-line flag
type flagField struct {
	configPath string // e.g., "server.grpc_port"
	flagName   string // e.g., "server-grpc-port"
	usage      string
	kind       reflect.Kind // scalar kind, or reflect.Slice for []string
}

// flagFields walks the Config struct using koanf tags and returns every field
// that can be set from a flag: scalars and string slices.
func flagFields() []flagField {
	var fields []flagField
	collectFlagFields(reflect.TypeOf(Config{}), "", &fields)
	return fields
}

func collectFlagFields(t reflect.Type, parentPath string, fields *[]flagField) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}

		// Inline structs share the parent path
		if strings.Contains(tag, "squash") {
			collectFlagFields(field.Type, parentPath, fields)
			continue
		}

		configPath := tag
		if parentPath != "" {
			configPath = parentPath + "." + tag
		}

		ft := field.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}

		switch {
		case ft.Kind() == reflect.Struct:
			collectFlagFields(ft, configPath, fields)

		case ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.String:
			*fields = append(*fields, flagField{
				configPath: configPath,
				flagName:   configPathToFlagName(configPath),
				usage:      usageFor(field, configPath),
				kind:       reflect.Slice,
			})

		case isScalarKind(ft.Kind()):
			*fields = append(*fields, flagField{
				configPath: configPath,
				flagName:   configPathToFlagName(configPath),
				usage:      usageFor(field, configPath),
				kind:       ft.Kind(),
			})
		}

		// Other slices and maps (policies, script config) are file-only
	}
}

func usageFor(field reflect.StructField, configPath string) string {
	if usage := field.Tag.Get("usage"); usage != "" {
		return usage
	}
	return "sets " + configPath
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.String, reflect.Bool,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// configPathToFlagName converts a config path to a flag name
// Examples:
//   - "server.grpc_port" -> "server-grpc-port"
//   - "base_path" -> "base-path"
func configPathToFlagName(configPath string) string {
	return strings.NewReplacer(".", "-", "_", "-").Replace(configPath)
}

// RegisterFlags registers command-line flags for every flag-settable config field.
// Flags already present in flagSet are left alone.
func RegisterFlags(flagSet *pflag.FlagSet) {
	for _, field := range flagFields() {
		if flagSet.Lookup(field.flagName) != nil {
			continue
		}

		switch field.kind {
		case reflect.String:
			flagSet.String(field.flagName, "", field.usage)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			flagSet.Int(field.flagName, 0, field.usage)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			flagSet.Uint(field.flagName, 0, field.usage)
		case reflect.Bool:
			flagSet.Bool(field.flagName, false, field.usage)
		case reflect.Float32, reflect.Float64:
			flagSet.Float64(field.flagName, 0, field.usage)
		case reflect.Slice:
			flagSet.StringSlice(field.flagName, nil, field.usage)
		}
	}
}

// GetFlagMapping returns the mapping from flag names to config paths,
// e.g. {"server-grpc-port": "server.grpc_port"}
func GetFlagMapping() map[string]string {
	fields := flagFields()
	mapping := make(map[string]string, len(fields))
	for _, f := range fields {
		mapping[f.flagName] = f.configPath
	}
	return mapping
}
