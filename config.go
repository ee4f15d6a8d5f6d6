package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opendatafab/sirene-lake/bronze"
	"github.com/opendatafab/sirene-lake/contract"
	"github.com/opendatafab/sirene-lake/gold"
	"github.com/opendatafab/sirene-lake/metrics"
	"github.com/opendatafab/sirene-lake/pipeline"
	"github.com/opendatafab/sirene-lake/silver"
)

// AppConfig represents the full application configuration.
type AppConfig struct {
	Service struct {
		Name string `yaml:"name"`
	} `yaml:"service"`

	// Environment selects which environments entry applies. The -env flag
	// overrides it.
	Environment string `yaml:"environment"`

	Storage struct {
		Root string `yaml:"root"`
	} `yaml:"storage"`

	Datasets map[string]DatasetConfig `yaml:"datasets"`

	Silver struct {
		RejectionThreshold float64 `yaml:"rejection_threshold"`
		MaxAgeYears        int     `yaml:"max_age_years"`
		ReferenceDate      string  `yaml:"reference_date"` // YYYY-MM-DD, empty = today
	} `yaml:"silver"`

	Filters struct {
		Departments []string `yaml:"departments"`
	} `yaml:"filters"`

	Gold struct {
		Reference map[string]string `yaml:"reference"`
	} `yaml:"gold"`

	Pipeline pipeline.PoolConfig `yaml:"pipeline"`
	Metrics  metrics.Config      `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	// Environments maps an environment name to its overrides (e.g.
	// development sampling vs. production full volume).
	Environments map[string]EnvOverrides `yaml:"environments"`
}

// DatasetConfig describes one source extract.
type DatasetConfig struct {
	Source string `yaml:"source"`
}

// EnvOverrides are the per-environment settings.
type EnvOverrides struct {
	SampleLimit        *int     `yaml:"sample_limit"`
	RejectionThreshold *float64 `yaml:"rejection_threshold"`
}

// LoadConfig loads the application configuration from a YAML file.
func LoadConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config AppConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults
	if config.Service.Name == "" {
		config.Service.Name = "sirene-lake"
	}
	if config.Environment == "" {
		config.Environment = "development"
	}
	if config.Silver.RejectionThreshold == 0 {
		config.Silver.RejectionThreshold = 0.2
	}
	if config.Silver.MaxAgeYears == 0 {
		config.Silver.MaxAgeYears = silver.DefaultMaxAgeYears
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	config.Pipeline.ApplyDefaults()
	config.Metrics.ApplyDefaults()

	return &config, nil
}

// Validate validates the application configuration. The pipeline fails fast
// here, before any layer executes.
func (c *AppConfig) Validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}
	if len(c.Datasets) == 0 {
		return fmt.Errorf("at least one dataset is required")
	}
	for name, ds := range c.Datasets {
		if _, ok := contract.ByName(name); !ok {
			return fmt.Errorf("dataset %s has no schema contract", name)
		}
		if ds.Source == "" {
			return fmt.Errorf("dataset %s: source is required", name)
		}
	}
	if c.Silver.RejectionThreshold < 0 || c.Silver.RejectionThreshold > 1 {
		return fmt.Errorf("silver.rejection_threshold must be within [0, 1]")
	}
	if c.Silver.ReferenceDate != "" {
		if _, err := time.Parse("2006-01-02", c.Silver.ReferenceDate); err != nil {
			return fmt.Errorf("silver.reference_date: %w", err)
		}
	}
	if _, ok := c.Environments[c.Environment]; !ok && len(c.Environments) > 0 {
		return fmt.Errorf("environment %q is not defined in environments", c.Environment)
	}
	return nil
}

// Resolve merges the selected environment's overrides into a run
// configuration. It is called once at startup; the result is immutable for
// the duration of the run.
func (c *AppConfig) Resolve(env string, withIngest bool) (pipeline.Options, error) {
	if env == "" {
		env = c.Environment
	}
	overrides, ok := c.Environments[env]
	if !ok && len(c.Environments) > 0 {
		return pipeline.Options{}, fmt.Errorf("environment %q is not defined", env)
	}

	sampleLimit := 0
	if overrides.SampleLimit != nil {
		sampleLimit = *overrides.SampleLimit
	}
	threshold := c.Silver.RejectionThreshold
	if overrides.RejectionThreshold != nil {
		threshold = *overrides.RejectionThreshold
	}

	referenceDate := time.Now().UTC().Truncate(24 * time.Hour)
	if c.Silver.ReferenceDate != "" {
		referenceDate, _ = time.Parse("2006-01-02", c.Silver.ReferenceDate)
	}

	// Deterministic dataset order regardless of YAML map iteration.
	names := make([]string, 0, len(c.Datasets))
	for name := range c.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)

	datasets := make([]bronze.Dataset, 0, len(names))
	for _, name := range names {
		ct, _ := contract.ByName(name)
		datasets = append(datasets, bronze.Dataset{
			Name:       name,
			SourcePath: c.Datasets[name].Source,
			PrimaryKey: ct.PrimaryKey,
		})
	}

	return pipeline.Options{
		Datasets:           datasets,
		WithIngest:         withIngest,
		SampleLimit:        sampleLimit,
		RejectionThreshold: threshold,
		Enrich: silver.EnrichConfig{
			ReferenceDate: referenceDate,
			MaxAgeYears:   c.Silver.MaxAgeYears,
			Departments:   c.Filters.Departments,
		},
		KPIs:           gold.DefaultKPIs(),
		ReferencePaths: c.Gold.Reference,
		Pool:           c.Pipeline,
	}, nil
}
