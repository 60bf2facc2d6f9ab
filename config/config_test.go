package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
addresses:
  - beanstalk://queue-a:11300
  - "queue-b, queue-c:11301"
test_tube: probes
dial_timeout: 2s
op_timeout: 500ms
probe:
  priority: 100
  ttr: 60s
audit:
  redis_url: redis://localhost:6379/0
  key_prefix: audit
  ttl: 1h
discovery:
  endpoints: [etcd-1:2379, etcd-2:2379]
  namespace: /prod/
  dial_timeout: 3s
  tls:
    cert_file: /etc/climber/client.pem
    key_file: /etc/climber/client-key.pem
    ca_file: /etc/climber/ca.pem
filter: tube == "emails"
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"beanstalk://queue-a:11300", "queue-b, queue-c:11301"}, cfg.GetAddresses())
	assert.Equal(t, "probes", cfg.GetTestTube())
	assert.Equal(t, 2*time.Second, cfg.GetDialTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.GetOpTimeout())
	assert.Equal(t, uint32(100), cfg.Probe.GetPriority())
	assert.Equal(t, 60*time.Second, cfg.Probe.GetTTR())

	assert.True(t, cfg.Audit.Enabled())
	assert.Equal(t, "audit", cfg.Audit.GetKeyPrefix())
	assert.Equal(t, time.Hour, cfg.Audit.GetTTL())

	assert.True(t, cfg.Discovery.Enabled())
	assert.Equal(t, "prod", cfg.Discovery.GetNamespace())
	assert.Equal(t, 3*time.Second, cfg.Discovery.GetDialTimeout())
	require.NotNil(t, cfg.Discovery.TLS)
	assert.Equal(t, "/etc/climber/ca.pem", cfg.Discovery.TLS.CAFile)

	assert.Equal(t, `tube == "emails"`, cfg.GetFilter())
}

func TestDefaults(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		var cfg *Config
		assert.Nil(t, cfg.GetAddresses())
		assert.Equal(t, "stalk_climber", cfg.GetTestTube())
		assert.Equal(t, 5*time.Second, cfg.GetDialTimeout())
		assert.Equal(t, time.Duration(0), cfg.GetOpTimeout())
		assert.Empty(t, cfg.GetFilter())
	})

	t.Run("empty sections", func(t *testing.T) {
		cfg, err := Parse([]byte("addresses: [localhost]\n"))
		require.NoError(t, err)

		assert.Equal(t, uint32(4294967295), cfg.Probe.GetPriority())
		assert.Equal(t, 300*time.Second, cfg.Probe.GetTTR())
		assert.False(t, cfg.Audit.Enabled())
		assert.Equal(t, "climber", cfg.Audit.GetKeyPrefix())
		assert.Equal(t, time.Duration(0), cfg.Audit.GetTTL())
		assert.False(t, cfg.Discovery.Enabled())
		assert.Equal(t, "climber", cfg.Discovery.GetNamespace())
		assert.Equal(t, 5*time.Second, cfg.Discovery.GetDialTimeout())
	})

	t.Run("invalid durations fall back", func(t *testing.T) {
		cfg, err := Parse([]byte("dial_timeout: soon\nprobe:\n  ttr: later\n"))
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.GetDialTimeout())
		assert.Equal(t, 300*time.Second, cfg.Probe.GetTTR())
	})

	t.Run("explicit zero priority", func(t *testing.T) {
		cfg, err := Parse([]byte("probe:\n  priority: 0\n"))
		require.NoError(t, err)
		assert.Equal(t, uint32(0), cfg.Probe.GetPriority())
	})
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("addresses: [unterminated"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Run("file path", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("test_tube: from-file\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.GetTestTube())
	})

	t.Run("directory with yml", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "climber.yml"), []byte("test_tube: yml\n"), 0o600))

		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "yml", cfg.GetTestTube())
	})

	t.Run("directory without config", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestLoadFromDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "climber.yaml"), []byte("test_tube: parent\n"), 0o600))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg, err := LoadFromDir(nested)
	require.NoError(t, err)
	assert.Equal(t, "parent", cfg.GetTestTube())
}
