// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"net/url"
	"os"
	"runtime"

	"github.com/spf13/pflag"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Error is a process error class
var Error = errs.Class("process error")

// LogConfig configures the process logger.
type LogConfig struct {
	Level       zapcore.Level
	Development bool
	Caller      bool
	Stack       bool
	Encoding    string
	Output      string
}

// BindFlags registers the log.* flags.
func (config *LogConfig) BindFlags(flags *pflag.FlagSet) {
	flags.Var(&levelValue{&config.Level}, "log.level", "the minimum log level to log")
	flags.BoolVar(&config.Development, "log.development", false, "if true, set logging to development mode")
	flags.BoolVar(&config.Caller, "log.caller", false, "if true, log function filename and line number")
	flags.BoolVar(&config.Stack, "log.stack", false, "if true, log stack traces")
	flags.StringVar(&config.Encoding, "log.encoding", "console", "configures log encoding. can either be 'console' or 'json'")
	flags.StringVar(&config.Output, "log.output", "stderr", "can be stdout, stderr, or a filename")
}

type levelValue struct{ level *zapcore.Level }

func (v *levelValue) String() string {
	if v.level == nil {
		return zapcore.InfoLevel.String()
	}
	return v.level.String()
}
func (v *levelValue) Set(s string) error { return v.level.Set(s) }
func (v *levelValue) Type() string       { return "level" }

func init() {
	winFileSink := func(u *url.URL) (zap.Sink, error) {
		// Remove leading slash left by url.Parse()
		return os.OpenFile(u.Path[1:], os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	}
	err := zap.RegisterSink("winfile", winFileSink)
	if err != nil {
		panic("Unable to register winfile sink: " + err.Error())
	}
}

// NewLogger creates a logger configured by config.
func NewLogger(config LogConfig) (*zap.Logger, error) {
	output := config.Output
	if output == "" {
		output = "stderr"
	}
	encoding := config.Encoding
	if encoding == "" {
		encoding = "console"
	}

	levelEncoder := zapcore.CapitalColorLevelEncoder
	if runtime.GOOS == "windows" || encoding == "json" {
		levelEncoder = zapcore.CapitalLevelEncoder
	}

	timeKey := "T"
	if os.Getenv("EXNODE_LOG_NOTIME") != "" {
		// using environment variable EXNODE_LOG_NOTIME to avoid additional flags
		timeKey = ""
	}

	logger, err := zap.Config{
		Level:             zap.NewAtomicLevelAt(config.Level),
		Development:       config.Development,
		DisableCaller:     !config.Caller,
		DisableStacktrace: !config.Stack,
		Encoding:          encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        timeKey,
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    levelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{output},
	}.Build()
	return logger, Error.Wrap(err)
}
