package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	EncodingJSON    = "json"
	EncodingConsole = "console"
)

type Config struct {
	Encoding  string `envconfig:"ENCODING" default:"console"`
	Level     string `envconfig:"LEVEL" default:"info"`
	AddSource bool   `envconfig:"ADD_SOURCE" default:"true"`
}

// Validate уровень и формат
func (c *Config) Validate() error {
	if _, err := c.level(); err != nil {
		return err
	}
	switch c.encoding() {
	case EncodingJSON, EncodingConsole:
		return nil
	default:
		return fmt.Errorf("encoding %q is not supported", c.Encoding)
	}
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if c.Level == "" {
		return slog.LevelInfo, nil
	}
	// принимает и WARNING, и warn
	text := strings.ToUpper(c.Level)
	if text == "WARNING" {
		text = "WARN"
	}
	if err := level.UnmarshalText([]byte(text)); err != nil {
		return 0, fmt.Errorf("level %q is not supported", c.Level)
	}
	return level, nil
}

func (c *Config) encoding() string {
	if c.Encoding == "" {
		return EncodingConsole
	}
	return strings.ToLower(c.Encoding)
}

// New логгер сервиса с атрибутом app. Невалидный конфиг заменяется на console/info.
func New(app string, cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = &Config{}
	}
	out := io.Writer(os.Stderr)
	if cfg.encoding() == EncodingJSON {
		out = os.Stdout
	}
	return slog.New(NewHandler(out, cfg)).With("app", app)
}

// NewHandler обработчик по конфигу, пишет в w
func NewHandler(w io.Writer, cfg *Config) slog.Handler {
	level, err := cfg.level()
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: shortSource,
	}

	if cfg.encoding() == EncodingJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// shortSource оставляет от пути к файлу каталог пакета и имя файла
func shortSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	src, ok := a.Value.Any().(*slog.Source)
	if !ok || src == nil {
		return a
	}
	file := filepath.Join(filepath.Base(filepath.Dir(src.File)), filepath.Base(src.File))
	return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", file, src.Line))
}
