/*
 * Copyright (c) 2020 Siemens AG
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of
 * this software and associated documentation files (the "Software"), to deal in
 * the Software without restriction, including without limitation the rights to
 * use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
 * the Software, and to permit persons to whom the Software is furnished to do so,
 * subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
 * FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
 * COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 * Author(s): Jonas Plum
 */

// Package config loads the JSON configuration of the import tools: the
// ordered import rules, the destination tables, their column schemas and the
// resource budgets of the pipeline.
package config

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/qri-io/jsonschema"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/artifactimport/importer"
	"github.com/forensicanalysis/artifactimport/tableout"
)

//go:embed schema.json
var schemaJSON []byte

// Rule is an import rule.
type Rule struct {
	Action   string `json:"action"`
	Name     string `json:"name"`
	Table    string `json:"table,omitempty"`
	Password string `json:"password,omitempty"`
	Before   string `json:"before,omitempty"`
	After    string `json:"after,omitempty"`
}

// Table is a destination table.
type Table struct {
	Name        string `json:"name"`
	Disposition string `json:"disposition,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
	// Schema names an entry of Config.Schemas.
	Schema    string `json:"schema,omitempty"`
	Compress  bool   `json:"compress,omitempty"`
	TableLock bool   `json:"table_lock,omitempty"`
	Before    string `json:"before,omitempty"`
	After     string `json:"after,omitempty"`
}

// Column is a column of a schema.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Path string `json:"path,omitempty"`
}

// Resources are the budgets of the pipeline.
type Resources struct {
	FileBytes       int64  `json:"file_bytes,omitempty"`
	MemoryBytes     int64  `json:"memory_bytes,omitempty"`
	MemoryThreshold int64  `json:"memory_threshold,omitempty"`
	PollInterval    string `json:"poll_interval,omitempty"`
	Password        string `json:"password,omitempty"`
}

// Config is the configuration of an import.
type Config struct {
	Import    []Rule              `json:"import"`
	Tables    []Table             `json:"tables"`
	Schemas   map[string][]Column `json:"schemas"`
	Resources Resources           `json:"resources"`
}

// Default returns the configuration used for unset values.
func Default() *Config {
	return &Config{
		Resources: Resources{
			FileBytes:       4 << 30,
			MemoryBytes:     512 << 20,
			MemoryThreshold: 4 << 20,
			PollInterval:    "1s",
		},
	}
}

// Load reads, validates and completes the configuration at path.
func Load(fs afero.Fs, path string) (*Config, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read config")
	}
	cfg, err := Parse(b)
	return cfg, errors.Wrapf(err, "invalid config %s", path)
}

// Parse validates and decodes a JSON configuration. Unset values are taken
// from Default.
func Parse(b []byte) (*Config, error) {
	if err := validate(b); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrap(err, "could not decode config")
	}
	if err := mergo.Merge(cfg, Default()); err != nil {
		return nil, errors.Wrap(err, "could not merge defaults")
	}
	if _, err := cfg.PollInterval(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(b []byte) error {
	schema := &jsonschema.Schema{}
	if err := json.Unmarshal(schemaJSON, schema); err != nil {
		return errors.Wrap(err, "could not load config schema")
	}

	flaws, err := schema.ValidateBytes(context.Background(), b)
	if err != nil {
		return errors.Wrap(err, "could not validate config")
	}
	if len(flaws) > 0 {
		var msgs []string
		for _, flaw := range flaws {
			msgs = append(msgs, fmt.Sprintf("%s", flaw))
		}
		return errors.Errorf("config does not match schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// PollInterval parses the poll interval of the resources.
func (c *Config) PollInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Resources.PollInterval)
	if err != nil || d <= 0 {
		return 0, errors.Errorf("invalid poll interval %q", c.Resources.PollInterval)
	}
	return d, nil
}

// Definition converts the import rules.
func (c *Config) Definition() (*importer.Definition, error) {
	def := &importer.Definition{}
	for _, r := range c.Import {
		action, err := importer.ParseAction(r.Action)
		if err != nil {
			return nil, err
		}
		def.Rules = append(def.Rules, importer.Rule{
			Action:    action,
			NameMatch: r.Name,
			Table:     r.Table,
			Password:  r.Password,
			Before:    r.Before,
			After:     r.After,
		})
	}
	return def, def.Validate()
}

// TableDescriptions converts the tables and resolves their schemas.
func (c *Config) TableDescriptions() ([]importer.TableDescription, error) {
	var descs []importer.TableDescription
	for _, t := range c.Tables {
		disposition, err := importer.ParseDisposition(t.Disposition)
		if err != nil {
			return nil, errors.Wrapf(err, "table %s", t.Name)
		}
		schema, err := c.schema(t.Schema)
		if err != nil {
			return nil, errors.Wrapf(err, "table %s", t.Name)
		}
		descs = append(descs, importer.TableDescription{
			Name:        t.Name,
			Disposition: disposition,
			Concurrency: t.Concurrency,
			Schema:      schema,
			Compress:    t.Compress,
			TableLock:   t.TableLock,
			Before:      t.Before,
			After:       t.After,
		})
	}
	return descs, nil
}

func (c *Config) schema(name string) (tableout.Schema, error) {
	if name == "" {
		return nil, nil
	}
	columns, ok := c.Schemas[name]
	if !ok {
		return nil, errors.Errorf("unknown schema %q", name)
	}

	var schema tableout.Schema
	for _, col := range columns {
		typ := tableout.String
		if col.Type != "" {
			var err error
			if typ, err = tableout.ParseColumnType(col.Type); err != nil {
				return nil, errors.Wrapf(err, "schema %s", name)
			}
		}
		schema = append(schema, tableout.Column{Name: col.Name, Type: typ, Path: col.Path})
	}
	return schema, nil
}
