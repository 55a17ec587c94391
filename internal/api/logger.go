package api

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mautops/timesheet-gin/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	logTimestampFormat = "2006-01-02T15:04:05.000Z07:00"
	serviceName        = "timesheet-gin"
)

var defaultLogger *logrus.Logger

// newFormatter 按配置格式构造 formatter,未知格式按 text 处理
func newFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{
			TimestampFormat: logTimestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "time",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "msg",
			},
		}
	}
	return &logrus.TextFormatter{
		TimestampFormat: logTimestampFormat,
		FullTimestamp:   true,
	}
}

// NewLogger 创建默认日志记录器(JSON, info, stdout)
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(newFormatter("json"))
	logger.SetLevel(logrus.InfoLevel)
	logger.SetOutput(os.Stdout)
	return logger
}

// NewLoggerFromConfig 根据配置创建日志记录器
// 每条日志附带 service 与 env 字段,便于日志聚合时区分环境
func NewLoggerFromConfig(cfg *config.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(newFormatter(cfg.Log.Format))

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	out, err := openLogOutput(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)

	logger.AddHook(&defaultFieldsHook{
		fields: logrus.Fields{
			"service": serviceName,
			"env":     cfg.Env,
		},
	})

	return logger, nil
}

// openLogOutput 根据 output 组合 stdout 与日志文件
func openLogOutput(cfg config.LogConfig) (io.Writer, error) {
	var writers []io.Writer
	if cfg.Output == "stdout" || cfg.Output == "both" {
		writers = append(writers, os.Stdout)
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		path := cfg.File
		if path == "" {
			path = filepath.Join("logs", serviceName+".log")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, file)
	}

	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

// defaultFieldsHook 为每条日志补充固定字段,不覆盖调用方已设置的同名字段
type defaultFieldsHook struct {
	fields logrus.Fields
}

func (h *defaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *defaultFieldsHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}

// SetLogger 替换默认日志记录器,服务启动时使用配置生成的实例
func SetLogger(logger *logrus.Logger) {
	defaultLogger = logger
}

// GetLogger 获取默认日志记录器
func GetLogger() *logrus.Logger {
	if defaultLogger == nil {
		defaultLogger = NewLogger()
	}
	return defaultLogger
}

// SetLoggerLevel 设置日志级别
func SetLoggerLevel(level logrus.Level) {
	GetLogger().SetLevel(level)
}
