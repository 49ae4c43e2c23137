package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, defaultAPIURL, cfg.APIURL)
	assert.Equal(t, defaultCacheDir, cfg.CacheDir)
	assert.Equal(t, 2*time.Second, cfg.InterItemDelay)
	assert.Equal(t, DelayPolicyFixed, cfg.DelayPolicy)
	assert.Equal(t, 7, cfg.Horizon)
	assert.Equal(t, "$", cfg.Currency)
	assert.Equal(t, 3, cfg.RetryMax)
	assert.Equal(t, language.English, cfg.Locale)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_YAML(t *testing.T) {
	t.Chdir(t.TempDir())

	path := writeConfig(t, `
api_url: https://skins.example.com/
token: abcdefghijkl
cache_dir: /tmp/skins
inter_item_delay: 500ms
delay_policy: backoff
max_delay: 10s
retry_max: "5"
horizon: "14"
currency: "₽"
locale: ru
items:
  - appid: "730"
    market_hash_name: "AK-47 | Redline (Field-Tested)"
    name: "AK-47 | Redline"
  - appid: "570"
    market_hash_name: "Arcana of the Demon"
use_favorites: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://skins.example.com", cfg.APIURL)
	assert.Equal(t, 500*time.Millisecond, cfg.InterItemDelay)
	assert.Equal(t, DelayPolicyBackoff, cfg.DelayPolicy)
	assert.Equal(t, 10*time.Second, cfg.MaxDelay)
	assert.Equal(t, 5, cfg.RetryMax)
	assert.Equal(t, 14, cfg.Horizon)
	assert.Equal(t, "₽", cfg.Currency)
	assert.Equal(t, "ru", cfg.Locale.String())
	assert.True(t, cfg.UseFavorites)
	require.Len(t, cfg.Items, 2)
	assert.Equal(t, "AK-47 | Redline", cfg.Items[0].Name)
	assert.Equal(t, "abcd****ijkl", cfg.MaskedToken())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SKINSYNC_TOKEN", "from-env-token")
	t.Setenv("SKINSYNC_API_URL", "http://env:9000")

	cfg, err := Load(writeConfig(t, "token: from-file\napi_url: http://file:8000\n"))
	require.NoError(t, err)

	assert.Equal(t, "from-env-token", cfg.Token)
	assert.Equal(t, "http://env:9000", cfg.APIURL)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SKINSYNC_CACHE_DIR=/var/cache/skins\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SKINSYNC_CACHE_DIR") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/skins", cfg.CacheDir)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		tmp  ConfigTmp
	}{
		{name: "horizon too long", tmp: ConfigTmp{HorizonStr: "15"}},
		{name: "horizon not a number", tmp: ConfigTmp{HorizonStr: "week"}},
		{name: "negative retries", tmp: ConfigTmp{RetryMaxStr: "-1"}},
		{name: "unknown currency", tmp: ConfigTmp{Currency: "£"}},
		{name: "unknown delay policy", tmp: ConfigTmp{DelayPolicy: "random"}},
		{name: "max delay below base", tmp: ConfigTmp{InterItemDelay: time.Minute, MaxDelay: time.Second}},
		{name: "item without appid", tmp: ConfigTmp{Items: []domain.Item{{MarketHashName: "x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tmp.Parse()
			assert.Error(t, err)
		})
	}
}

func TestConfig_TmpRoundTrip(t *testing.T) {
	cfg, err := ConfigTmp{Currency: "€", HorizonStr: "3", Locale: "de"}.Parse()
	require.NoError(t, err)

	data, err := yaml.Marshal(cfg.Tmp())
	require.NoError(t, err)

	var tmp ConfigTmp
	require.NoError(t, yaml.Unmarshal(data, &tmp))
	back, err := tmp.Parse()
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
