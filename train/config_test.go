package train

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "conv", cfg.Architecture)
	require.Equal(t, "gan", cfg.Objective())
	require.Equal(t, int64(1337), cfg.Seed)
}

func TestLoadConfig(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, ErrConfigNotFound)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "name: lsgan-test\nloss: LSGAN\nbatch_size: 8\nttur: true\narchitecture: mlp\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "lsgan-test", cfg.Name)
	require.Equal(t, "lsgan", cfg.Objective())
	require.Equal(t, 8, cfg.BatchSize)
	require.True(t, cfg.TTUR)
	// untouched keys keep defaults
	require.Equal(t, 100, cfg.LatentDim)

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("batch_size: [1"), 0o644))
	_, err = LoadConfig(broken)
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvPrefix+"BATCH_SIZE", "16")
	t.Setenv(EnvPrefix+"LOSS", "hinge")
	t.Setenv(EnvPrefix+"LR", "0.001")
	t.Setenv(EnvPrefix+"SEED", "7")
	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	require.Equal(t, 16, cfg.BatchSize)
	require.Equal(t, "hinge", cfg.Loss)
	require.InDelta(t, 0.001, cfg.LR, 1e-12)
	require.Equal(t, int64(7), cfg.Seed)

	t.Setenv(EnvPrefix+"BATCH_SIZE", "many")
	cfg = DefaultConfig()
	require.Error(t, cfg.ApplyEnv())
}

func TestLoadDotenv(t *testing.T) {
	require.NoError(t, LoadDotenv(filepath.Join(t.TempDir(), ".env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(EnvPrefix+"EPOCHS_DOTENV_TEST=3\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv(EnvPrefix + "EPOCHS_DOTENV_TEST") })
	require.NoError(t, LoadDotenv(path))
	require.Equal(t, "3", os.Getenv(EnvPrefix+"EPOCHS_DOTENV_TEST"))
}

func TestRates(t *testing.T) {
	cfg := DefaultConfig()
	gLR, dLR, b1, b2 := cfg.Rates()
	require.Equal(t, cfg.LR, gLR)
	require.Equal(t, cfg.LR, dLR)
	require.Equal(t, 0.5, b1)
	require.Equal(t, 0.999, b2)

	cfg.TTUR = true
	gLR, dLR, b1, b2 = cfg.Rates()
	require.InDelta(t, cfg.LR/2, gLR, 1e-12)
	require.InDelta(t, cfg.LR*2, dLR, 1e-12)
	require.Equal(t, 0.0, b1)
	require.Equal(t, 0.9, b2)
}

func TestPenaltyCenterValue(t *testing.T) {
	cfg := DefaultConfig()
	_, ok := cfg.PenaltyCenterValue()
	require.False(t, ok)
	cfg.PenaltyCenter = "one"
	v, ok := cfg.PenaltyCenterValue()
	require.True(t, ok)
	require.Equal(t, 1.0, v)

	require.Equal(t, PenaltyReal, cfg.PenaltyPointName())
	cfg.PenaltyPoint = "DRAGAN"
	require.Equal(t, PenaltyDragan, cfg.PenaltyPointName())
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Config)
	}{
		{"loss", func(c *Config) { c.Loss = "vae" }},
		{"architecture", func(c *Config) { c.Architecture = "resnet" }},
		{"condition", func(c *Config) { c.Condition = "tags" }},
		{"i2v without labels", func(c *Config) { c.Condition = ConditionI2V }},
		{"penalty", func(c *Config) { c.PenaltyCenter = "two" }},
		{"penalty point", func(c *Config) { c.PenaltyPoint = "midpoint" }},
		{"holdout", func(c *Config) { c.Holdout = -1 }},
		{"batch size", func(c *Config) { c.BatchSize = 0 }},
		{"channels", func(c *Config) { c.Channels = 2 }},
		{"no iterations", func(c *Config) { c.Epochs = 0; c.MaxIters = 0 }},
		{"lr", func(c *Config) { c.LR = 0 }},
		{"clip", func(c *Config) { c.ClipValue = -1 }},
		{"activation", func(c *Config) { c.Activation = "swish" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
