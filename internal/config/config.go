// Package config loads the shell's YAML configuration.
package config

import (
	_ "embed"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

//go:embed default/config.yaml
var defaultConfigData []byte

const ConfigurationName = "config.yaml"

const (
	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

type Configuration struct {
	configFs  afero.Fs
	configDir string

	Prompt      string `json:"prompt" validate:"required"`
	HistoryFile string `json:"history_file"`
	EventLog    string `json:"event_log"`
	Color       string `json:"color" validate:"oneof=always auto never"`
	TermFd      int    `json:"term_fd" validate:"gte=0"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	if c.configFs == nil {
		return afero.NewOsFs()
	}
	return c.configFs
}

func (c *Configuration) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.configDir, name)
}

// HistoryPath returns the absolute-or-config-relative history file, or "".
func (c *Configuration) HistoryPath() string {
	return c.resolve(c.HistoryFile)
}

// OpenEventLog opens the event log in an append only state. It returns nil
// without error when the log is disabled.
func (c *Configuration) OpenEventLog() (afero.File, error) {
	if c.EventLog == "" {
		return nil, nil
	}
	name := c.resolve(c.EventLog)
	if err := c.fs().MkdirAll(filepath.Dir(name), 0700); err != nil {
		return nil, err
	}
	return c.fs().OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// Default returns the built-in configuration.
func Default() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// Load reads config.yaml from path, which may be the directory holding it or
// the file itself. A missing file yields the defaults.
func Load(fsys afero.Fs, path string) (*Configuration, error) {
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	out := Default()
	out.configFs = fsys
	out.configDir = path

	contents, err := afero.ReadFile(fsys, filepath.Join(path, ConfigurationName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return out, nil
	case err != nil:
		return nil, err
	}

	if err := yaml.UnmarshalStrict(contents, out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
