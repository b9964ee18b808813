package ledmatrix

import (
	"encoding"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"libdb.so/ledmatrix/internal/font"
	"libdb.so/ledmatrix/led"
	"libdb.so/ledmatrix/matrix"
)

// Config is the configuration for the ledmatrix daemon.
type Config struct {
	// Output is where frames are flushed to.
	Output OutputKind `toml:"output" yaml:"output"`
	// Device is the path to the serial device of the controller board.
	// This is usually /dev/ttyUSB0 or /dev/ttyACM0.
	Device string `toml:"device" yaml:"device"`
	// Baud is the baud rate for the serial connection.
	Baud int `toml:"baud" yaml:"baud"`
	// SPI configures the spi output.
	SPI SPIConfig `toml:"spi" yaml:"spi"`
	// Rate is the refresh rate of the matrix in frames per second.
	Rate int `toml:"rate" yaml:"rate"`
	// Preview is the address to serve the websocket preview on. The preview
	// is disabled if empty.
	Preview string `toml:"preview" yaml:"preview"`

	// Matrix describes the panel.
	Matrix MatrixConfig `toml:"matrix" yaml:"matrix"`
	// Background is the color the whole matrix is set to on startup. Scrolling
	// text redraws onto a cleared matrix every frame, so with Text.Scroll set
	// the background only shows until the first frame.
	Background *led.RGBColor `toml:"background,omitempty" yaml:"background,omitempty"`
	// Rects are drawn once on startup, after the background. Like the
	// background, they are wiped by scrolling text.
	Rects []RectConfig `toml:"rect" yaml:"rect"`
	// Text is the text shown on the matrix.
	Text *TextConfig `toml:"text,omitempty" yaml:"text,omitempty"`
}

// OutputKind is the kind of sink frames are flushed to.
type OutputKind string

const (
	// SerialOutput sends frames to a controller board over a serial port.
	SerialOutput OutputKind = "serial"
	// SPIOutput drives the strip directly from an SPI port.
	SPIOutput OutputKind = "spi"
	// LogOutput only logs frames.
	LogOutput OutputKind = "log"
)

// SPIConfig is the configuration for the spi output.
type SPIConfig struct {
	// Port is the SPI port name. The first port is used if empty.
	Port string `toml:"port" yaml:"port"`
	// FreqKHz is the strip data rate in kHz. Defaults to 800.
	FreqKHz int `toml:"freq_khz" yaml:"freq_khz"`
}

// MatrixConfig describes the LED panel.
type MatrixConfig struct {
	Width  int `toml:"width" yaml:"width"`
	Height int `toml:"height" yaml:"height"`
	// Bounds is what to do with rectangles that do not fit the matrix.
	Bounds matrix.BoundsPolicy `toml:"bounds" yaml:"bounds"`
}

// NumLEDs returns the number of LEDs in the matrix.
func (c MatrixConfig) NumLEDs() int {
	return c.Width * c.Height
}

// RectConfig is a rectangle drawn on startup. Exactly one of RGB and HSV must
// be set.
type RectConfig struct {
	X   int           `toml:"x" yaml:"x"`
	Y   int           `toml:"y" yaml:"y"`
	W   int           `toml:"w" yaml:"w"`
	H   int           `toml:"h" yaml:"h"`
	RGB *led.RGBColor `toml:"rgb,omitempty" yaml:"rgb,omitempty"`
	HSV *led.HSVColor `toml:"hsv,omitempty" yaml:"hsv,omitempty"`
}

// TextConfig is the text shown on the matrix.
type TextConfig struct {
	// Message is the text. Only the first matrix.MaxTextLen characters are
	// shown.
	Message string `toml:"message" yaml:"message"`
	// X is the column the text starts at.
	X float64 `toml:"x" yaml:"x"`
	// Color is the text color.
	Color led.HSVColor `toml:"color" yaml:"color"`
	// Scroll makes the text move left over time.
	Scroll bool `toml:"scroll" yaml:"scroll"`
	// ScrollRate is the scroll speed in columns per millisecond.
	// Defaults to matrix.DefaultScrollRate.
	ScrollRate float64 `toml:"scroll_rate" yaml:"scroll_rate"`
	// Repeat restarts the text from X after this long. Zero means never.
	Repeat Duration `toml:"repeat" yaml:"repeat"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Output {
	case SerialOutput:
		if c.Device == "" {
			return errors.New("serial output needs a device")
		}
		if c.Baud <= 0 {
			return errors.Errorf("invalid baud rate %d", c.Baud)
		}
		if c.Matrix.NumLEDs() > 0xFFFF {
			return errors.Errorf("serial output supports at most %d LEDs", 0xFFFF)
		}
	case SPIOutput:
		if c.SPI.FreqKHz < 0 {
			return errors.Errorf("invalid SPI frequency %d kHz", c.SPI.FreqKHz)
		}
	case LogOutput:
	default:
		return errors.Errorf("unknown output %q", c.Output)
	}

	if c.Rate <= 0 {
		return errors.Errorf("invalid refresh rate %d", c.Rate)
	}

	if c.Matrix.Width <= 0 || c.Matrix.Height <= 0 {
		return errors.Errorf("invalid matrix size %dx%d", c.Matrix.Width, c.Matrix.Height)
	}

	for i, r := range c.Rects {
		if r.W <= 0 || r.H <= 0 {
			return errors.Errorf("rect %d: invalid size %dx%d", i, r.W, r.H)
		}
		if (r.RGB == nil) == (r.HSV == nil) {
			return errors.Errorf("rect %d: exactly one of rgb and hsv must be set", i)
		}
	}

	if c.Text != nil {
		if !font.Has(matrix.NewText(c.Text.Message).String()) {
			return errors.Errorf("text %q has characters the font cannot draw", c.Text.Message)
		}
		if c.Text.ScrollRate < 0 {
			return errors.Errorf("invalid scroll rate %v", c.Text.ScrollRate)
		}
		if c.Text.Repeat < 0 {
			return errors.Errorf("invalid repeat interval %v", time.Duration(c.Text.Repeat))
		}
	}

	return nil
}

// Duration is a duration that can be parsed from TOML and YAML.
type Duration time.Duration

var (
	_ encoding.TextUnmarshaler = (*Duration)(nil)
	_ encoding.TextMarshaler   = (*Duration)(nil)
)

func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DefaultConfig returns the configuration used for keys missing from a
// configuration file.
func DefaultConfig() Config {
	return Config{
		Output: LogOutput,
		Baud:   115200,
		Rate:   30,
		Matrix: MatrixConfig{
			Width:  32,
			Height: 8,
		},
	}
}

// ParseConfig parses a TOML configuration from a reader.
func ParseConfig(r io.Reader) (*Config, error) {
	config := DefaultConfig()
	if err := toml.NewDecoder(r).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// ParseYAMLConfig parses a YAML configuration from a reader.
func ParseYAMLConfig(r io.Reader) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.NewDecoder(r).Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &config, nil
}

// LoadConfig reads the configuration file at path. Files ending in .yaml or
// .yml are parsed as YAML, everything else as TOML.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config file")
	}
	defer f.Close()

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = ParseYAMLConfig(f)
	default:
		cfg, err = ParseConfig(f)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	return cfg, nil
}
