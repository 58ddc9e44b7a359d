package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/config"
)

type dispatchConfig struct {
	ContextPath   string        `env:"CFGTEST_CONTEXT_PATH"`
	UnloadDelay   time.Duration `env:"CFGTEST_UNLOAD_DELAY" envDefault:"2s"`
	MaxInstances  int           `env:"CFGTEST_MAX_INSTANCES" envDefault:"20"`
	ErrorPages    []string      `env:"CFGTEST_ERROR_PAGES" envSeparator:","`
	LoadOnStartup bool          `env:"CFGTEST_LOAD_ON_STARTUP" envDefault:"true"`
}

type requiredConfig struct {
	Descriptor string `env:"CFGTEST_REQUIRED_DESCRIPTOR,required"`
}

type prefixedConfig struct {
	Addr string `env:"ADDR" envDefault:":8080"`
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func unsetAfter(t *testing.T, keys ...string) {
	t.Helper()
	t.Cleanup(func() {
		for _, k := range keys {
			_ = os.Unsetenv(k)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	var cfg dispatchConfig
	require.NoError(t, config.Load(&cfg, config.WithEnvFiles(filepath.Join(t.TempDir(), "missing.env"))))

	assert.Empty(t, cfg.ContextPath)
	assert.Equal(t, 2*time.Second, cfg.UnloadDelay)
	assert.Equal(t, 20, cfg.MaxInstances)
	assert.True(t, cfg.LoadOnStartup)
	assert.Nil(t, cfg.ErrorPages)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("CFGTEST_CONTEXT_PATH", "/shop")
	t.Setenv("CFGTEST_UNLOAD_DELAY", "250ms")
	t.Setenv("CFGTEST_ERROR_PAGES", "404=/missing,500=/oops")

	var cfg dispatchConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "/shop", cfg.ContextPath)
	assert.Equal(t, 250*time.Millisecond, cfg.UnloadDelay)
	assert.Equal(t, []string{"404=/missing", "500=/oops"}, cfg.ErrorPages)

	t.Setenv("CFGTEST_CONTEXT_PATH", "/admin")
	var again dispatchConfig
	require.NoError(t, config.Load(&again))
	assert.Equal(t, "/admin", again.ContextPath, "nothing is cached between calls")
}

func TestLoad_EnvFile(t *testing.T) {
	unsetAfter(t, "CFGTEST_MAX_INSTANCES", "CFGTEST_CONTEXT_PATH")
	t.Setenv("CFGTEST_CONTEXT_PATH", "/from-process")
	path := writeEnvFile(t, "CFGTEST_MAX_INSTANCES=3\nCFGTEST_CONTEXT_PATH=/from-file\n")

	var cfg dispatchConfig
	require.NoError(t, config.Load(&cfg, config.WithEnvFiles(path)))
	assert.Equal(t, 3, cfg.MaxInstances)
	assert.Equal(t, "/from-process", cfg.ContextPath, "process environment wins")

	require.NoError(t, config.Load(&cfg, config.WithEnvFiles(path), config.WithOverload()))
	assert.Equal(t, "/from-file", cfg.ContextPath)
}

func TestLoad_Prefix(t *testing.T) {
	t.Setenv("CFGTEST_HTTP_ADDR", ":9090")

	var cfg prefixedConfig
	require.NoError(t, config.Load(&cfg, config.WithPrefix("CFGTEST_HTTP_")))
	assert.Equal(t, ":9090", cfg.Addr)
}

func TestLoad_Errors(t *testing.T) {
	var cfg requiredConfig
	err := config.Load(&cfg)
	assert.ErrorIs(t, err, config.ErrParsingConfig)
	assert.Panics(t, func() { config.MustLoad(&cfg) })

	t.Setenv("CFGTEST_MAX_INSTANCES", "many")
	var bad dispatchConfig
	assert.ErrorIs(t, config.Load(&bad), config.ErrParsingConfig)

	assert.ErrorIs(t, config.Load[dispatchConfig](nil), config.ErrNilPointer)

	dir := t.TempDir()
	err = config.Load(&bad, config.WithEnvFiles(dir))
	assert.ErrorIs(t, err, config.ErrLoadingEnvFile, "a directory is not a dotenv file")

	assert.Panics(t, func() { config.WithEnvFiles("") })
}
