package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	slogzap "github.com/samber/slog-zap/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	cfgFile string
	env     string
	rootCmd = &cobra.Command{
		Use:   "gqlwsc",
		Short: "Client for WebSocket-carried GraphQL queries and subscriptions",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment-specific config to merge (config.<env>.yaml)")
}

func NewAsyncLogger() (*slog.Logger, func()) {
	// Lumberjack for file rotation
	fileWriter := &lumberjack.Logger{
		Filename:   "gqlwsc.log",
		MaxSize:    100, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	// Console writer
	consoleWriter := zapcore.AddSync(os.Stderr)

	// Encoder config
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	// Create encoders
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	bufferedFileWriter := &zapcore.BufferedWriteSyncer{
		WS:            zapcore.AddSync(fileWriter),
		Size:          256 * 1024, // 256KB buffer
		FlushInterval: 5 * time.Second,
	}

	bufferedConsoleWriter := &zapcore.BufferedWriteSyncer{
		WS:            consoleWriter,
		Size:          64 * 1024, // 64KB buffer
		FlushInterval: 1 * time.Second,
	}

	core := zapcore.NewTee(
		zapcore.NewCore(fileEncoder, bufferedFileWriter, zapcore.InfoLevel),
		zapcore.NewCore(consoleEncoder, bufferedConsoleWriter, zapcore.ErrorLevel),
	)

	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	handler := slogzap.Option{
		Level:  slog.LevelInfo,
		Logger: zapLogger,
	}.NewZapHandler()

	return slog.New(handler), func() { zapLogger.Sync() }
}

func SetupLogger() (*slog.Logger, func()) {
	return NewAsyncLogger()
}
