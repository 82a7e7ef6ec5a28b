package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"
)

func TestBuiltinConfig(t *testing.T) {
	rawConfig := make(map[string]interface{})
	require.NoError(t, yaml.Unmarshal(defaultConfigData, &rawConfig))

	knownFields := make(map[string]bool)
	rt := reflect.TypeOf(Configuration{})
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		jsonField := strings.Split(field.Tag.Get("json"), ",")[0]
		knownFields[jsonField] = true

		_, ok := rawConfig[jsonField]
		assert.True(t, ok, "default config missing field: %q", jsonField)
	}

	for k := range rawConfig {
		assert.True(t, knownFields[k], "default config contains invalid field: %q", k)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "jobshell> ", cfg.Prompt)
	assert.Equal(t, ColorAuto, cfg.Color)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "/etc/jobshell")
	require.NoError(t, err)
	assert.Equal(t, Default().Prompt, cfg.Prompt)
}

func TestLoadOverrides(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/cfg/config.yaml", []byte("prompt: \"$ \"\ncolor: never\nevent_log: logs/events.jsonl\n"), 0600))

	for _, path := range []string{"/cfg", "/cfg/config.yaml"} {
		cfg, err := Load(fsys, path)
		require.NoError(t, err, path)
		assert.Equal(t, "$ ", cfg.Prompt)
		assert.Equal(t, ColorNever, cfg.Color)
		assert.Equal(t, "", cfg.HistoryPath())
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/cfg/config.yaml", []byte("prompt: x\nshell_vars: {}\n"), 0600))

	_, err := Load(fsys, "/cfg")
	assert.Error(t, err)
}

func TestLoadValidates(t *testing.T) {
	fsys := afero.NewMemMapFs()
	for _, body := range []string{
		"prompt: \"\"\n",
		"color: sometimes\n",
		"term_fd: -1\n",
	} {
		require.NoError(t, afero.WriteFile(fsys, "/cfg/config.yaml", []byte(body), 0600))
		_, err := Load(fsys, "/cfg")
		assert.Error(t, err, body)
	}
}

func TestOpenEventLog(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/cfg/config.yaml", []byte("event_log: logs/events.jsonl\nhistory_file: /tmp/hist\n"), 0600))
	cfg, err := Load(fsys, "/cfg")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/hist", cfg.HistoryPath())

	fd, err := cfg.OpenEventLog()
	require.NoError(t, err)
	_, err = fd.WriteString("{}\n")
	require.NoError(t, err)
	require.NoError(t, fd.Close())

	data, err := afero.ReadFile(fsys, filepath.Join("/cfg", "logs", "events.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}

func TestOpenEventLogDisabled(t *testing.T) {
	fd, err := Default().OpenEventLog()
	assert.NoError(t, err)
	assert.Nil(t, fd)
}
