// Package config decodes the "app" section of the batch configuration into the settings of the order jobs.
package config

import (
	"fmt"

	"github.com/tigerroll/chunkbatch/example/order/internal/domain"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/writer"
	batchconfig "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/fault"
)

// StepSettings tunes one chunk step.
type StepSettings struct {
	ChunkSize int          `yaml:"chunk_size"`
	Fault     fault.Policy `yaml:"fault"`
}

// Settings is the "app" section.
type Settings struct {
	// DBRef names the database holding the orders and customers tables.
	DBRef string `yaml:"db_ref"`
	// AutoMigrate applies the bundled migrations before jobs are accepted.
	AutoMigrate bool `yaml:"auto_migrate"`
	// CustomersCSV is read from disk when set. The bundled sample file is used otherwise.
	CustomersCSV string `yaml:"customers_csv"`
	// PendingMinAgeMinutes is how old a PENDING order must be before orderProcessJob picks it up.
	PendingMinAgeMinutes int `yaml:"pending_min_age_minutes"`
	// SetupOrderCount is the number of orders created by setupOrdersJob.
	SetupOrderCount int                        `yaml:"setup_order_count"`
	Export          writer.ParquetWriterConfig `yaml:"export"`
	Steps           map[string]StepSettings    `yaml:"steps"`
}

// Step names used as keys of Settings.Steps.
const (
	CustomerImportStep = "csvToDbStep"
	OrderProcessStep   = "orderProcessStep"
	FaultTolerantStep  = "faultTolerantStep"
	ParameterStep      = "parameterProcessStep"
	ExportStep         = "processedOrderExportStep"
)

// Defaults returns the settings used for keys missing from the configuration.
func Defaults() Settings {
	return Settings{
		DBRef:                "app",
		AutoMigrate:          true,
		PendingMinAgeMinutes: 10,
		SetupOrderCount:      15,
		Export: writer.ParquetWriterConfig{
			StorageRef:      "exports",
			OutputBaseDir:   "orders/processed",
			CompressionType: "SNAPPY",
		},
		Steps: map[string]StepSettings{
			CustomerImportStep: {ChunkSize: 10},
			OrderProcessStep:   {ChunkSize: 5},
			FaultTolerantStep: {
				ChunkSize: 3,
				Fault: fault.Policy{
					SkipLimit:       10,
					RetryLimit:      3,
					SkippableErrors: []string{domain.InvalidOrderErrorType},
					RetryableErrors: []string{domain.TransientOrderErrorType},
				},
			},
			ParameterStep: {ChunkSize: 5},
			ExportStep:    {ChunkSize: 100},
		},
	}
}

// Load decodes cfg.App over Defaults. Steps present in the configuration replace their default entry.
func Load(cfg *batchconfig.Config) (Settings, error) {
	s := Defaults()
	steps := s.Steps
	s.Steps = nil
	if err := batchconfig.DecodeSection(cfg.App, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode app settings: %w", err)
	}
	for name, def := range steps {
		if _, ok := s.Steps[name]; !ok {
			if s.Steps == nil {
				s.Steps = make(map[string]StepSettings)
			}
			s.Steps[name] = def
		}
	}
	for name, st := range s.Steps {
		if st.ChunkSize < 1 {
			return Settings{}, fmt.Errorf("app.steps.%s.chunk_size must be at least 1, got %d", name, st.ChunkSize)
		}
		if err := st.Fault.Validate(); err != nil {
			return Settings{}, fmt.Errorf("app.steps.%s: %w", name, err)
		}
	}
	if s.DBRef == "" {
		return Settings{}, fmt.Errorf("app.db_ref must not be empty")
	}
	return s, nil
}

// Step returns the settings of the named step.
func (s Settings) Step(name string) StepSettings {
	return s.Steps[name]
}
