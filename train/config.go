// Package train runs adversarial training of the registered architectures on
// anime face batches.
package train

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"

	animegan "github.com/LdDl/animeface-gan"
	"github.com/LdDl/animeface-gan/models"
)

// AppName names directories under XDG base dirs.
const AppName = "animeface-gan"

// EnvPrefix prefixes environment overrides, e.g. ANIMEGAN_BATCH_SIZE.
const EnvPrefix = "ANIMEGAN_"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// Points of the gradient norm monitor.
const (
	PenaltyReal        = "real"
	PenaltyInterpolate = "interpolate"
	PenaltyDragan      = "dragan"
)

// Condition kinds.
const (
	ConditionNone = ""
	ConditionYear = "year"
	ConditionI2V  = "i2v"
)

// Config holds training parameters.
type Config struct {
	Name string `yaml:"name"`

	DataRoot  string `yaml:"data_root"`
	Labels    string `yaml:"labels"`
	Condition string `yaml:"condition"`
	MinYear   int    `yaml:"min_year"`
	Holdout   int    `yaml:"holdout"`
	ImageSize int    `yaml:"image_size"`
	Channels  int    `yaml:"channels"`
	HFlip     bool   `yaml:"hflip"`
	Workers   int    `yaml:"workers"`

	Architecture string `yaml:"architecture"`
	LatentDim    int    `yaml:"latent_dim"`
	Hidden       int    `yaml:"hidden"`
	Activation   string `yaml:"activation"`

	Loss           string  `yaml:"loss"`
	BatchSize      int     `yaml:"batch_size"`
	Epochs         int     `yaml:"epochs"`
	MaxIters       int     `yaml:"max_iters"`
	LR             float64 `yaml:"lr"`
	Beta1          float64 `yaml:"beta1"`
	Beta2          float64 `yaml:"beta2"`
	TTUR           bool    `yaml:"ttur"`
	DSteps         int     `yaml:"d_steps"`
	GSteps         int     `yaml:"g_steps"`
	LabelSmoothing bool    `yaml:"label_smoothing"`
	ClipValue      float64 `yaml:"clip_value"`
	// PenaltyCenter enables gradient norm monitoring: "zero" or "one".
	PenaltyCenter string `yaml:"penalty_center"`
	// PenaltyPoint is where the norm is measured: "real", "interpolate" or "dragan".
	PenaltyPoint string `yaml:"penalty_point"`

	VerboseInterval int    `yaml:"verbose_interval"`
	SaveInterval    int    `yaml:"save_interval"`
	SampleCount     int    `yaml:"sample_count"`
	OutputDir       string `yaml:"output_dir"`
	DBDir           string `yaml:"db_dir"`
	Seed            int64  `yaml:"seed"`
}

// DefaultDataDir is the XDG data directory of the application.
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultConfigPath is the XDG config file location.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// DefaultConfig returns DCGAN-like settings of the anime face experiments.
func DefaultConfig() Config {
	data := DefaultDataDir()
	return Config{
		Name:            "dcgan",
		DataRoot:        filepath.Join(data, "animefacedataset", "images"),
		MinYear:         2005,
		ImageSize:       32,
		Channels:        3,
		HFlip:           true,
		Workers:         4,
		Architecture:    "conv",
		LatentDim:       100,
		Hidden:          32,
		Activation:      "lrelu",
		Loss:            "gan",
		BatchSize:       32,
		Epochs:          100,
		LR:              0.0002,
		Beta1:           0.5,
		Beta2:           0.999,
		DSteps:          1,
		GSteps:          1,
		VerboseInterval: 100,
		SaveInterval:    1000,
		SampleCount:     16,
		OutputDir:       filepath.Join(data, "runs"),
		DBDir:           data,
		Seed:            1337,
	}
}

// LoadConfig reads YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	expanded, err := homedir.Expand(path)
	if err != nil {
		return cfg, errors.Wrap(err, "Can't expand config path")
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, ErrConfigNotFound
		}
		return cfg, errors.Wrap(err, "Can't read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "Can't parse config %s", expanded)
	}
	return cfg, nil
}

// LoadDotenv loads KEY=VALUE pairs into the process environment. Missing file is not an error.
func LoadDotenv(path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return errors.Wrap(err, "Can't expand dotenv path")
	}
	if _, err := os.Stat(expanded); os.IsNotExist(err) {
		return nil
	}
	return errors.Wrap(gotenv.Load(expanded), "Can't load dotenv")
}

// ApplyEnv overrides fields from ANIMEGAN_* variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"DATA_ROOT":    &c.DataRoot,
		"LABELS":       &c.Labels,
		"CONDITION":    &c.Condition,
		"ARCHITECTURE": &c.Architecture,
		"LOSS":         &c.Loss,
		"OUTPUT_DIR":   &c.OutputDir,
		"DB_DIR":       &c.DBDir,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	ints := map[string]*int{
		"BATCH_SIZE": &c.BatchSize,
		"IMAGE_SIZE": &c.ImageSize,
		"EPOCHS":     &c.Epochs,
		"MAX_ITERS":  &c.MaxIters,
		"MIN_YEAR":   &c.MinYear,
		"HOLDOUT":    &c.Holdout,
		"WORKERS":    &c.Workers,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s%s", EnvPrefix, key)
		}
		*dst = n
	}
	if v, ok := os.LookupEnv(EnvPrefix + "LR"); ok {
		lr, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "%sLR", EnvPrefix)
		}
		c.LR = lr
	}
	if v, ok := os.LookupEnv(EnvPrefix + "SEED"); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "%sSEED", EnvPrefix)
		}
		c.Seed = seed
	}
	return nil
}

// ExpandPaths resolves "~" in path fields.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.DataRoot, &c.Labels, &c.OutputDir, &c.DBDir} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return errors.Wrapf(err, "Can't expand %s", *p)
		}
		*p = expanded
	}
	return nil
}

// Objective returns the lower cased loss name.
func (c Config) Objective() string {
	return strings.ToLower(c.Loss)
}

// Rates returns (generator lr, discriminator lr, beta1, beta2). With TTUR the
// generator runs at lr/2, the discriminator at lr*2 and betas are (0, 0.9).
func (c Config) Rates() (float64, float64, float64, float64) {
	if c.TTUR {
		return c.LR / 2, c.LR * 2, 0, 0.9
	}
	return c.LR, c.LR, c.Beta1, c.Beta2
}

// PenaltyCenterValue returns 0 or 1 for the gradient norm monitor.
func (c Config) PenaltyCenterValue() (float64, bool) {
	switch strings.ToLower(c.PenaltyCenter) {
	case "zero", "0":
		return 0, true
	case "one", "1":
		return 1, true
	default:
		return 0, false
	}
}

// PenaltyPointName returns the lower cased penalty point, "real" when unset.
func (c Config) PenaltyPointName() string {
	if c.PenaltyPoint == "" {
		return PenaltyReal
	}
	return strings.ToLower(c.PenaltyPoint)
}

// Validate checks values. It returns the first problem found.
func (c Config) Validate() error {
	switch c.Objective() {
	case "gan", "lsgan", "wgan", "hinge", "mse", "bce":
	default:
		return fmt.Errorf("unknown loss '%s'", c.Loss)
	}
	known := false
	for _, name := range models.Names() {
		if strings.EqualFold(name, c.Architecture) {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown architecture '%s', available: %s", c.Architecture, strings.Join(models.Names(), ", "))
	}
	if _, ok := animegan.ActivationByName(c.Activation); c.Activation != "" && !ok {
		return fmt.Errorf("unknown activation '%s'", c.Activation)
	}
	switch c.Condition {
	case ConditionNone, ConditionYear:
	case ConditionI2V:
		if c.Labels == "" {
			return fmt.Errorf("condition '%s' needs labels file", c.Condition)
		}
	default:
		return fmt.Errorf("unknown condition '%s'", c.Condition)
	}
	if c.PenaltyCenter != "" {
		if _, ok := c.PenaltyCenterValue(); !ok {
			return fmt.Errorf("penalty center must be 'zero' or 'one', got '%s'", c.PenaltyCenter)
		}
	}
	switch c.PenaltyPointName() {
	case PenaltyReal, PenaltyInterpolate, PenaltyDragan:
	default:
		return fmt.Errorf("unknown penalty point '%s'", c.PenaltyPoint)
	}
	if c.Holdout < 0 {
		return fmt.Errorf("holdout must not be negative, got %d", c.Holdout)
	}
	positive := []struct {
		name  string
		value int
	}{
		{"image_size", c.ImageSize},
		{"batch_size", c.BatchSize},
		{"latent_dim", c.LatentDim},
		{"hidden", c.Hidden},
		{"d_steps", c.DSteps},
		{"g_steps", c.GSteps},
		{"verbose_interval", c.VerboseInterval},
		{"save_interval", c.SaveInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.Channels != 1 && c.Channels != 3 {
		return fmt.Errorf("channels must be 1 or 3, got %d", c.Channels)
	}
	if c.Epochs <= 0 && c.MaxIters <= 0 {
		return fmt.Errorf("either epochs or max_iters must be positive")
	}
	if c.LR <= 0 {
		return fmt.Errorf("lr must be positive, got %v", c.LR)
	}
	if c.ClipValue < 0 {
		return fmt.Errorf("clip_value must not be negative, got %v", c.ClipValue)
	}
	if c.SampleCount < 0 {
		return fmt.Errorf("sample_count must not be negative, got %d", c.SampleCount)
	}
	return nil
}
