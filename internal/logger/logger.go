package logger

import (
	"context"
	"io"
	"os"
	"time"

	pkgctx "github.com/baechuer/teamup/internal/pkg/context"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

var Logger zerolog.Logger

// Options come from config. Zero values give info-level colored console output.
type Options struct {
	Level   string // zerolog level name; unknown values mean info
	Format  string // "json" or "console"
	NoColor bool
	Caller  bool
}

func Init(opt Options) {
	InitWithWriter(os.Stdout, opt)
}

func InitWithWriter(w io.Writer, opt Options) {
	level, err := zerolog.ParseLevel(opt.Level)
	if err != nil || opt.Level == "" {
		level = zerolog.InfoLevel
	}

	var ctx zerolog.Context
	if opt.Format == "json" {
		ctx = zerolog.New(w).With().Timestamp()
	} else {
		ctx = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    opt.NoColor,
		}).With().Timestamp()
	}
	if opt.Caller {
		ctx = ctx.Caller()
	}

	Logger = ctx.Str("service", "game-service").Logger().Level(level)
	zlog.Logger = Logger
}

// WithCtx returns the global logger tagged with the request/trace id in ctx.
func WithCtx(ctx context.Context) *zerolog.Logger {
	l := zlog.Logger
	if id := pkgctx.GetRequestID(ctx); id != "" {
		l = l.With().Str("request_id", id).Logger()
	} else if id := pkgctx.GetTraceID(ctx); id != "" {
		l = l.With().Str("trace_id", id).Logger()
	}
	return &l
}
