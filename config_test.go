package ledmatrix

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libdb.so/ledmatrix/led"
	"libdb.so/ledmatrix/matrix"
)

const tomlConfig = `
output = "serial"
device = "/dev/ttyACM0"
rate = 60
background = "#000010"

[matrix]
width = 16
bounds = "clamp"

[[rect]]
x = 0
y = 0
w = 2
h = 2
rgb = "#ff0000"

[[rect]]
x = 4
y = 1
w = 1
h = 3
hsv = { h = 96, s = 255, v = 128 }

[text]
message = "HELLO"
x = 2.5
color = { h = 160, s = 255, v = 64 }
scroll = true
scroll_rate = 0.02
repeat = "10s"
`

const yamlConfig = `
output: spi
spi:
  port: /dev/spidev0.0
  freq_khz: 2500
preview: ":8080"
background: "#000010"
matrix:
  width: 16
  bounds: skip
rect:
  - {x: 0, y: 0, w: 2, h: 2, rgb: "#ff0000"}
text:
  message: HI
  color: {h: 0, s: 255, v: 255}
  repeat: 1m
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(tomlConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, SerialOutput, cfg.Output)
	assert.Equal(t, "/dev/ttyACM0", cfg.Device)
	assert.Equal(t, 115200, cfg.Baud, "default kept")
	assert.Equal(t, 60, cfg.Rate)

	assert.Equal(t, MatrixConfig{Width: 16, Height: 8, Bounds: matrix.PolicyClamp}, cfg.Matrix)
	assert.Equal(t, 128, cfg.Matrix.NumLEDs())

	require.NotNil(t, cfg.Background)
	assert.Equal(t, led.RGB(0, 0, 16), *cfg.Background)

	require.Len(t, cfg.Rects, 2)
	assert.Equal(t, led.RGB(255, 0, 0), *cfg.Rects[0].RGB)
	assert.Nil(t, cfg.Rects[0].HSV)
	assert.Equal(t, led.HSV(96, 255, 128), *cfg.Rects[1].HSV)
	assert.Equal(t, 3, cfg.Rects[1].H)

	require.NotNil(t, cfg.Text)
	assert.Equal(t, "HELLO", cfg.Text.Message)
	assert.Equal(t, 2.5, cfg.Text.X)
	assert.Equal(t, led.HSV(160, 255, 64), cfg.Text.Color)
	assert.True(t, cfg.Text.Scroll)
	assert.Equal(t, 0.02, cfg.Text.ScrollRate)
	assert.Equal(t, Duration(10*time.Second), cfg.Text.Repeat)
}

func TestParseYAMLConfig(t *testing.T) {
	cfg, err := ParseYAMLConfig(strings.NewReader(yamlConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, SPIOutput, cfg.Output)
	assert.Equal(t, SPIConfig{Port: "/dev/spidev0.0", FreqKHz: 2500}, cfg.SPI)
	assert.Equal(t, ":8080", cfg.Preview)
	assert.Equal(t, 30, cfg.Rate, "default kept")
	assert.Equal(t, MatrixConfig{Width: 16, Height: 8, Bounds: matrix.PolicySkip}, cfg.Matrix)
	assert.Equal(t, led.RGB(0, 0, 16), *cfg.Background)

	require.Len(t, cfg.Rects, 1)
	assert.Equal(t, led.RGB(255, 0, 0), *cfg.Rects[0].RGB)

	require.NotNil(t, cfg.Text)
	assert.Equal(t, "HI", cfg.Text.Message)
	assert.Equal(t, led.HSV(0, 255, 255), cfg.Text.Color)
	assert.Equal(t, Duration(time.Minute), cfg.Text.Repeat)
}

func TestParseEmptyConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)

	cfg, err = ParseYAMLConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"bad color", `background = "red"`},
		{"bad policy", "[matrix]\nbounds = \"wrap\""},
		{"bad duration", "[text]\nrepeat = \"soon\""},
		{"hue overflow", "[text]\ncolor = { h = 256, s = 0, v = 0 }"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseConfig(strings.NewReader(test.config))
			assert.Error(t, err)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	red := led.RGB(255, 0, 0)

	tests := []struct {
		name   string
		modify func(*Config)
		err    string
	}{
		{"unknown output", func(c *Config) { c.Output = "hdmi" }, `unknown output "hdmi"`},
		{"serial without device", func(c *Config) { c.Output = SerialOutput }, "needs a device"},
		{"bad baud", func(c *Config) {
			c.Output = SerialOutput
			c.Device = "/dev/ttyUSB0"
			c.Baud = 0
		}, "invalid baud rate"},
		{"too many serial leds", func(c *Config) {
			c.Output = SerialOutput
			c.Device = "/dev/ttyUSB0"
			c.Matrix.Width = 9000
		}, "at most 65535 LEDs"},
		{"negative spi freq", func(c *Config) {
			c.Output = SPIOutput
			c.SPI.FreqKHz = -1
		}, "invalid SPI frequency"},
		{"zero rate", func(c *Config) { c.Rate = 0 }, "invalid refresh rate"},
		{"empty matrix", func(c *Config) { c.Matrix.Height = 0 }, "invalid matrix size 32x0"},
		{"empty rect", func(c *Config) {
			c.Rects = []RectConfig{{W: 0, H: 1, RGB: &red}}
		}, "rect 0: invalid size"},
		{"rect without color", func(c *Config) {
			c.Rects = []RectConfig{{W: 1, H: 1}}
		}, "exactly one of rgb and hsv"},
		{"rect with two colors", func(c *Config) {
			c.Rects = []RectConfig{{W: 1, H: 1, RGB: &red, HSV: &led.HSVColor{}}}
		}, "exactly one of rgb and hsv"},
		{"undrawable text", func(c *Config) {
			c.Text = &TextConfig{Message: "caf\xc3\xa9"}
		}, "font cannot draw"},
		{"negative scroll rate", func(c *Config) {
			c.Text = &TextConfig{Message: "A", ScrollRate: -1}
		}, "invalid scroll rate"},
		{"negative repeat", func(c *Config) {
			c.Text = &TextConfig{Message: "A", Repeat: Duration(-time.Second)}
		}, "invalid repeat interval"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.modify(&cfg)
			assert.ErrorContains(t, cfg.Validate(), test.err)
		})
	}
}

func TestConfigValidateIgnoresTruncatedText(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Text = &TextConfig{Message: strings.Repeat("A", matrix.MaxTextLen) + "\x01"}
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	tomlPath := filepath.Join(dir, "ledmatrix.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(tomlConfig), 0o644))

	cfg, err := LoadConfig(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, SerialOutput, cfg.Output)

	yamlPath := filepath.Join(dir, "ledmatrix.YML")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlConfig), 0o644))

	cfg, err = LoadConfig(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, SPIOutput, cfg.Output)

	_, err = LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.ErrorContains(t, err, "failed to open config file")

	// YAML content is not valid TOML.
	badPath := filepath.Join(dir, "wrong.toml")
	require.NoError(t, os.WriteFile(badPath, []byte(yamlConfig), 0o644))

	_, err = LoadConfig(badPath)
	assert.ErrorContains(t, err, "failed to parse")
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, Duration(90*time.Second), d)

	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(b))

	assert.Error(t, d.UnmarshalText([]byte("90")))
}
