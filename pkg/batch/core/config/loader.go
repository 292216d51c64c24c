package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/serialization"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	Expander       EnvironmentExpander
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// NewConfigProvider is an Fx provider that loads and provides *Config.
// It applies the process-wide settings of the loaded configuration.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(params.EnvFilePath, params.EmbeddedConfig, params.Expander)
	if err != nil {
		return nil, err
	}
	Apply(cfg)
	return cfg, nil
}

// Apply sets the log level and the parameter keys masked in logs and reports.
func Apply(cfg *Config) {
	logger.SetLogLevel(cfg.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.System.Logging.Level)
	serialization.SetMaskedParameterKeys(cfg.Security.MaskedParameterKeys)
}

// LoadConfig builds the configuration in four layers: defaults, the .env file, the embedded YAML with
// ${VAR} placeholders expanded, and finally environment variables named after the yaml tag path
// (e.g. BATCH_CHUNK_SIZE, DATABASE_METADATA_HOST).
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}

	cfg := NewConfig()

	raw, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment placeholders", err, false, false)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}

	if err := Validate(cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "invalid configuration", err, false, false)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late, at job launch.
func Validate(cfg *Config) error {
	if cfg.Batch.ChunkSize <= 0 {
		return fmt.Errorf("batch.chunk_size must be positive, got %d", cfg.Batch.ChunkSize)
	}
	if err := checkExceptionClasses(cfg.Batch.ItemRetry.RetryableExceptions, "item_retry"); err != nil {
		return err
	}
	if err := checkExceptionClasses(cfg.Batch.ItemSkip.SkippableExceptions, "item_skip"); err != nil {
		return err
	}
	switch cfg.Infrastructure.JobRepositoryType {
	case "sql", "inmemory":
	default:
		return fmt.Errorf("unknown infrastructure.job_repository_type '%s'", cfg.Infrastructure.JobRepositoryType)
	}
	switch cfg.Scheduler.OverlapPolicy {
	case "skip-if-running", "run-concurrently", "queue":
	default:
		return fmt.Errorf("unknown scheduler.overlap_policy '%s'", cfg.Scheduler.OverlapPolicy)
	}
	return nil
}

// DecodeSection decodes a raw section (an entry of Database or Storage, or App) into out, honouring yaml tags.
// Strings coming from environment overrides are converted to the target field types, durations included.
func DecodeSection(raw interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// checkExceptionClasses validates that all error type names are registered.
func checkExceptionClasses(classNames []string, configType string) error {
	for _, name := range classNames {
		if !exception.IsErrorTypeRegistered(name) {
			return fmt.Errorf("%s configuration references unknown exception class: '%s'. Ensure it is registered", configType, name)
		}
	}
	return nil
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case field.Kind() == reflect.Map && field.Type().Elem().Kind() == reflect.Interface:
			loadSectionsFromEnv(field, envVarName+"_")
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadSectionsFromEnv overrides entries of a named-section map.
// DATABASE_METADATA_HOST=db sets Database["metadata"]["host"] = "db".
func loadSectionsFromEnv(mapField reflect.Value, prefix string) {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		keyAndField, envValue, ok := strings.Cut(strings.TrimPrefix(env, prefix), "=")
		if !ok {
			continue
		}
		sectionName, fieldName, ok := strings.Cut(keyAndField, "_")
		if !ok || sectionName == "" || fieldName == "" {
			continue
		}
		sectionName = strings.ToLower(sectionName)

		section := map[string]interface{}{}
		if existing := mapField.MapIndex(reflect.ValueOf(sectionName)); existing.IsValid() {
			if m, ok := existing.Interface().(map[string]interface{}); ok {
				section = m
			}
		}
		section[strings.ToLower(fieldName)] = envValue
		mapField.SetMapIndex(reflect.ValueOf(sectionName), reflect.ValueOf(section))
	}
}

// setField sets the value of a reflect.Value field based on its kind.
// String slices are read as comma-separated lists.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		field.Set(reflect.ValueOf(parts))
	}
	return nil
}
