// Package jobtable loads the static job table used by immediate mode. The table is a yaml file
// with the backup directory and a list of named jobs, independent of the maintenance catalog.
package jobtable

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/umputun/backups/app/catalog"
	"github.com/umputun/backups/app/conditions"
)

//go:generate go run ./internal/schema ../../backups-schema.json

// ErrJobNotFound returned by Lookup for unknown job name
var ErrJobNotFound = errors.New("job not found")

// Table is the static job table
type Table struct {
	BackupDir string `yaml:"backup_dir" json:"backup_dir" jsonschema:"required,description=directory receiving backups"`
	Jobs      []Job  `yaml:"jobs" json:"jobs" jsonschema:"required,minItems=1,description=backup jobs"`
	file      string
}

// Job is a named list of sources with optional pre-run conditions
type Job struct {
	Name       string             `yaml:"name" json:"name" jsonschema:"required,pattern=^\\S+$,description=job name used on the command line"`
	Sources    []string           `yaml:"sources" json:"sources" jsonschema:"required,minItems=1,description=files or directories to back up"`
	Conditions *conditions.Config `yaml:"conditions,omitempty" json:"conditions,omitempty" jsonschema:"description=host conditions required to run"`
}

// Load reads and validates the table file
func Load(file string) (*Table, error) {
	data, err := os.ReadFile(file) //nolint:gosec // table file from config
	if err != nil {
		return nil, fmt.Errorf("can't read job table %s: %w", file, err)
	}
	res, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("job table %s: %w", file, err)
	}
	res.file = file
	return res, nil
}

// Parse decodes yaml table, unknown fields are rejected
func Parse(data []byte) (*Table, error) {
	res := Table{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&res); err != nil {
		return nil, fmt.Errorf("can't parse yaml: %w", err)
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return &res, nil
}

// Lookup finds job by name
func (t *Table) Lookup(name string) (Job, error) {
	for _, j := range t.Jobs {
		if j.Name == name {
			return j, nil
		}
	}
	return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
}

// Names returns job names in table order
func (t *Table) Names() []string {
	res := make([]string, 0, len(t.Jobs))
	for _, j := range t.Jobs {
		res = append(res, j.Name)
	}
	return res
}

// Dir returns the backup directory of the table
func (t *Table) Dir() string { return t.BackupDir }

func (t *Table) String() string { return t.file }

// Job converts to the shared job shape
func (j Job) Job() catalog.Job {
	return catalog.Job{Name: j.Name, Sources: append([]string(nil), j.Sources...)}
}

// Schema returns JSON schema of the table file
func Schema() ([]byte, error) {
	schema := jsonschema.Reflect(&Table{})
	schema.Title = "Backups Job Table Schema"
	schema.Description = "Schema for the static job table used by immediate mode"
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// Validate checks the table is usable
func (t *Table) Validate() error {
	if strings.TrimSpace(t.BackupDir) == "" {
		return errors.New("backup_dir is required")
	}
	if len(t.Jobs) == 0 {
		return errors.New("at least one job is required")
	}
	seen := map[string]bool{}
	for i, j := range t.Jobs {
		if err := (catalog.Job{Name: j.Name, Sources: j.Sources}).Validate(); err != nil {
			return fmt.Errorf("job %d: %w", i+1, err)
		}
		for _, src := range j.Sources {
			if strings.TrimSpace(src) == "" {
				return fmt.Errorf("job %d: empty source", i+1)
			}
		}
		if seen[j.Name] {
			return fmt.Errorf("job %d: duplicate name %q", i+1, j.Name)
		}
		seen[j.Name] = true
		if j.Conditions != nil {
			if err := validateConditions(*j.Conditions, i+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateConditions(c conditions.Config, jobNum int) error {
	percent := func(name string, v *int) error {
		if v != nil && (*v < 0 || *v > 100) {
			return fmt.Errorf("job %d: conditions.%s must be between 0 and 100", jobNum, name)
		}
		return nil
	}
	if err := percent("cpu_below", c.CPUBelow); err != nil {
		return err
	}
	if err := percent("memory_below", c.MemoryBelow); err != nil {
		return err
	}
	if err := percent("disk_free_above", c.DiskFreeAbove); err != nil {
		return err
	}
	if c.LoadAvgBelow != nil && *c.LoadAvgBelow < 0 {
		return fmt.Errorf("job %d: conditions.load_avg_below must not be negative", jobNum)
	}
	return nil
}
