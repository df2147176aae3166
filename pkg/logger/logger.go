package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Field = zapcore.Field

// Field constructors re-exported so callers never import zap directly.
var (
	String   = zap.String
	Strings  = zap.Strings
	Int      = zap.Int
	Float64  = zap.Float64
	Bool     = zap.Bool
	Duration = zap.Duration
	Error    = zap.Error
	Any      = zap.Any
)

// Logger wraps zap.Logger so the rest of the tree depends on one package.
type Logger struct {
	*zap.Logger
}

// Config controls the stdout core and the optional rotated file core.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console

	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

const nameWidth = 15

var levelColors = map[zapcore.Level]string{
	zapcore.DebugLevel: "\033[1;37m",
	zapcore.InfoLevel:  "\033[1;36m",
	zapcore.WarnLevel:  "\033[1;33m",
	zapcore.ErrorLevel: "\033[1;31m",
}

func colorLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	color, ok := levelColors[level]
	if !ok {
		enc.AppendString(level.String())
		return
	}
	enc.AppendString(color + level.String() + "\033[0m")
}

// padName keeps only the last segment of a dotted name so console columns line up.
func padName(name string, enc zapcore.PrimitiveArrayEncoder) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if len(name) > nameWidth {
		name = name[:nameWidth]
	}
	enc.AppendString(fmt.Sprintf("%-*s", nameWidth, name))
}

func baseEncoderConfig(debug bool) zapcore.EncoderConfig {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      zapcore.OmitKey,
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	if debug {
		cfg.CallerKey = "caller"
		cfg.EncodeCaller = zapcore.ShortCallerEncoder
	}
	return cfg
}

func stdoutEncoder(format string, debug bool) (zapcore.Encoder, error) {
	cfg := baseEncoderConfig(debug)
	switch format {
	case "json":
		return zapcore.NewJSONEncoder(cfg), nil
	case "console":
		cfg.EncodeLevel = colorLevel
		cfg.EncodeName = padName
		return zapcore.NewConsoleEncoder(cfg), nil
	}
	return nil, fmt.Errorf("unsupported log format: %s", format)
}

// New builds a logger writing to stdout and, when FilePath is set, to a
// lumberjack-rotated JSON file.
func New(config Config) (*Logger, error) {
	var level zapcore.Level
	switch config.Level {
	case "debug", "info", "warn", "error":
		if err := level.UnmarshalText([]byte(config.Level)); err != nil {
			return nil, fmt.Errorf("unsupported log level: %s", config.Level)
		}
	default:
		return nil, fmt.Errorf("unsupported log level: %s", config.Level)
	}
	debug := level == zapcore.DebugLevel

	enc, err := stdoutEncoder(config.Format, debug)
	if err != nil {
		return nil, err
	}
	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)}

	if config.FilePath != "" {
		file := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   config.Compress,
		}
		if file.MaxSize <= 0 {
			file.MaxSize = 64
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(baseEncoderConfig(debug)),
			zapcore.AddSync(file),
			level,
		))
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if debug {
		opts = append(opts, zap.AddCaller())
	}
	return &Logger{Logger: zap.New(zapcore.NewTee(cores...), opts...)}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Named returns a child logger; console output shows the last name segment.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}
