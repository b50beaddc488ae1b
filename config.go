package watermark

import (
	"errors"
	"fmt"
	"io"

	"github.com/yyyoichi/watermark_dct/internal/ecc"
	"gopkg.in/yaml.v3"
)

// ConfigVersion tags the layout of Config. Engines built from configs of
// another version could read a different bit order, so loading them fails.
const ConfigVersion = "dctmark/v1"

var ErrConfigVersion = errors.New("unsupported config version")

// Config is the serialisable form of an Engine. Embedding and extraction
// must use equal configs.
type Config struct {
	Version     string     `yaml:"version"`
	BlockSize   int        `yaml:"block_size"`
	Positions   []Position `yaml:"positions"`
	PrefixWidth int        `yaml:"prefix_width"`
	ECC         string     `yaml:"ecc"`
	Seed        *int64     `yaml:"seed,omitempty"`
	Strength    float64    `yaml:"strength"`
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	c := Config{
		Version:     ConfigVersion,
		BlockSize:   e.blockSize,
		Positions:   e.params.Modulator.Positions(),
		PrefixWidth: e.prefixWidth,
		ECC:         string(e.scheme),
		Strength:    e.strength,
	}
	if e.seed != nil {
		seed := *e.seed
		c.Seed = &seed
	}
	return c
}

// Options converts c back into engine options.
func (c Config) Options() ([]Option, error) {
	if c.Version != ConfigVersion {
		return nil, fmt.Errorf("%w: %q", ErrConfigVersion, c.Version)
	}
	var opts []Option
	if c.BlockSize != 0 {
		opts = append(opts, WithBlockSize(c.BlockSize))
	}
	if len(c.Positions) > 0 {
		opts = append(opts, WithPositions(c.Positions...))
	}
	if c.PrefixWidth != 0 {
		opts = append(opts, WithPrefixWidth(c.PrefixWidth))
	}
	switch ecc.Scheme(c.ECC) {
	case "", ecc.None:
	case ecc.Golay:
		opts = append(opts, WithGolay())
	default:
		return nil, fmt.Errorf("%w: %w: %q", ErrInvalidConfig, ecc.ErrUnknownScheme, c.ECC)
	}
	if c.Seed != nil {
		opts = append(opts, WithSeed(*c.Seed))
	}
	if c.Strength != 0 {
		opts = append(opts, WithStrength(c.Strength))
	}
	return opts, nil
}

// NewFromConfig initializes an engine equal to the one c was taken from.
func NewFromConfig(c Config) (*Engine, error) {
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	return New(opts...)
}

// LoadConfig reads a YAML config.
func LoadConfig(r io.Reader) (Config, error) {
	var c Config
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Version != ConfigVersion {
		return Config{}, fmt.Errorf("%w: %q", ErrConfigVersion, c.Version)
	}
	return c, nil
}

// Write encodes c as YAML.
func (c Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
