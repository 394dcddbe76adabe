package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/asset-registry/pkg/assetregistry/config"
	"gopkg.in/yaml.v3"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigCmd_RedactsSecrets(t *testing.T) {
	t.Setenv("API_KEY", "topsecret")
	t.Setenv("GITHUB_TOKEN", "ghp_abc")
	t.Setenv("GITHUB_OWNER", "acme")
	t.Setenv("GITHUB_REPO", "assets")

	out, err := runCmd(t, "config")
	require.NoError(t, err)
	assert.NotContains(t, out, "topsecret")
	assert.NotContains(t, out, "ghp_abc")

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "REDACTED", cfg.Auth.Secret)
	assert.Equal(t, "acme", cfg.GitHub.Owner)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestConfigCmd_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9191\"\n"), 0644))

	out, err := runCmd(t, "--config", path, "config")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "9191", cfg.Server.Port)
}

func TestConfigCmd_EnvHelp(t *testing.T) {
	out, err := runCmd(t, "config", "--env")
	require.NoError(t, err)
	assert.Contains(t, out, "GITHUB_TOKEN")
	assert.Contains(t, out, "STORE_DRIVER")
}

func TestInvalidConfigFails(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mysql")
	_, err := runCmd(t, "config")
	assert.Error(t, err)
}

func TestMigrateNeedsPostgres(t *testing.T) {
	_, err := runCmd(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}
