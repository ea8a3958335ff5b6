package config

import (
	"fmt"
	"go/types"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ConfigOptions is a group of ConfigOptions that can be for convenience
// initialized and set at the same time.
type ConfigOptions []*ConfigOption

// Validate all the config options.
func (options ConfigOptions) Validate() error {
	for _, option := range options {
		if option.Validate != nil {
			err := option.Validate(option)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("Invalid config value for %s", option.Name))
			}
		}
	}
	return nil
}

// ConfigOption is a complete description of the configuration of a command line option
type ConfigOption struct {
	Name           string                    // e.g. "workload-api-key"
	EnvVar         string                    // e.g. "GATEWAYBENCH_WORKLOAD_API_KEY". Defaults to the prefixed uppercase/underscore representation of name
	TomlKey        string                    // e.g. "WORKLOAD_API_KEY". Defaults to uppercase/underscore representation of name. - to omit from toml
	Usage          string                    // Help text
	OptType        types.BasicKind           // The type of the flag, e.g. types.Bool
	DefaultValue   interface{}               // A default if no option is provided. Omit or set to `nil` if no default
	ConfigKey      interface{}               // Pointer to the final key in the linked Config struct
	CustomSetValue func(interface{}) error   // Optional function for custom validation/transformation
	Validate       func(*ConfigOption) error // Function called after loading all options, to validate the configuration
}

// Returns false if this option is omitted in the toml
func (o ConfigOption) getTomlKey() (string, bool) {
	if o.TomlKey == "-" || o.TomlKey == "_" {
		return "", false
	}
	if o.TomlKey != "" {
		return o.TomlKey, true
	}
	return strings.ToUpper(strings.ReplaceAll(o.Name, "-", "_")), true
}

func (o ConfigOption) envVar() string {
	if o.EnvVar != "" {
		return o.EnvVar
	}
	return defaultEnvVar(o.Name)
}

// register adds the option as a flag and binds both the flag and the
// environment variable in v.
func (o *ConfigOption) register(flags *pflag.FlagSet, v *viper.Viper) error {
	usage := fmt.Sprintf("%s (%s)", o.Usage, o.envVar())
	switch o.OptType {
	case types.Bool:
		def, _ := o.DefaultValue.(bool)
		flags.Bool(o.Name, def, usage)
	case types.Uint:
		def, _ := o.DefaultValue.(uint)
		flags.Uint(o.Name, def, usage)
	case types.Uint64:
		def, _ := o.DefaultValue.(uint64)
		flags.Uint64(o.Name, def, usage)
	case types.Float64:
		def, _ := o.DefaultValue.(float64)
		flags.Float64(o.Name, def, usage)
	case types.String:
		def := ""
		if o.DefaultValue != nil {
			def = fmt.Sprint(o.DefaultValue)
		}
		flags.String(o.Name, def, usage)
	default:
		return errors.Errorf("unexpected option type %v for %s", o.OptType, o.Name)
	}
	if err := v.BindPFlag(o.Name, flags.Lookup(o.Name)); err != nil {
		return errors.Wrapf(err, "bind flag %s", o.Name)
	}
	return errors.Wrapf(v.BindEnv(o.Name, o.envVar()), "bind env %s", o.Name)
}

func (o *ConfigOption) setValue(i interface{}) (err error) {
	if o.CustomSetValue != nil {
		return o.CustomSetValue(i)
	}
	// it's unfortunate that Set below panics when it cannot set the value..
	// we'll want to catch this so that we can alert the user nicely.
	defer func() {
		if recoverRes := recover(); recoverRes != nil {
			var ok bool
			if err, ok = recoverRes.(error); ok {
				return
			}

			err = errors.Errorf("config option setting error ('%s') %v", o.Name, recoverRes)
		}
	}()
	parser := func(option *ConfigOption, i interface{}) error {
		panic(fmt.Sprintf("no parser for flag %s", o.Name))
	}
	switch o.ConfigKey.(type) {
	case *time.Duration:
		return parseDuration(o, i)
	case *[]string:
		return parseStringSlice(o, i)
	}
	switch reflect.ValueOf(o.ConfigKey).Elem().Kind() {
	case reflect.Bool:
		parser = parseBool
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		parser = parseUint
	case reflect.Float32, reflect.Float64:
		parser = parseFloat
	case reflect.String:
		parser = parseString
	}

	return parser(o, i)
}

func (o *ConfigOption) marshalTOML() (interface{}, error) {
	// go-toml doesn't handle ints other than `int`, so we have to do that ourselves.
	switch v := o.ConfigKey.(type) {
	case *time.Duration:
		return v.String(), nil
	case *logrus.Level:
		return v.String(), nil
	case *LogFormat:
		return v.String(), nil
	case *uint, *uint8, *uint16, *uint32, *uint64:
		return int64(reflect.ValueOf(v).Elem().Uint()), nil
	default:
		return reflect.ValueOf(o.ConfigKey).Elem().Interface(), nil
	}
}

// positive is a Validate func requiring a numeric option greater than zero.
func positive(option *ConfigOption) error {
	v := reflect.ValueOf(option.ConfigKey).Elem()
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v.Uint() == 0 {
			return errors.Errorf("%s must be positive", option.Name)
		}
	case reflect.Float32, reflect.Float64:
		if v.Float() <= 0 {
			return errors.Errorf("%s must be positive", option.Name)
		}
	case reflect.Int64:
		if v.Int() <= 0 {
			return errors.Errorf("%s must be positive", option.Name)
		}
	}
	return nil
}

func nonNegative(option *ConfigOption) error {
	v := reflect.ValueOf(option.ConfigKey).Elem()
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		if v.Float() < 0 {
			return errors.Errorf("%s cannot be negative", option.Name)
		}
	case reflect.Int64:
		if v.Int() < 0 {
			return errors.Errorf("%s cannot be negative", option.Name)
		}
	}
	return nil
}
