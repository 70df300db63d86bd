package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из конфигурации ("debug", "INFO" ...).
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("неизвестный уровень логирования %q", s)
}

// zapLevel отображает уровень на zap. TRACE у zap нет, пишем его как Debug.
func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case TRACE, DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Options задают общий вывод для всех логгеров процесса.
type Options struct {
	Level       LogLevel
	Development bool   // консольный формат вместо JSON
	Dir         string // если не пусто, логи дублируются в файл в этой директории
}

// Logger компонентный логгер поверх zap.SugaredLogger.
type Logger struct {
	component string
	level     zap.AtomicLevel
	minLevel  *atomic.Int32
	base      *zap.Logger
	sugar     *zap.SugaredLogger
	file      *os.File
}

var (
	optsMu  sync.RWMutex
	options = Options{Level: INFO, Development: true}

	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Configure задаёт формат и уровень для логгеров, созданных после вызова.
func Configure(opts Options) {
	optsMu.Lock()
	options = opts
	optsMu.Unlock()
}

func currentOptions() Options {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return options
}

// NewLogger создаёт логгер компонента с текущими Options.
func NewLogger(component string) (*Logger, error) {
	opts := currentOptions()

	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	if opts.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}
	var file *os.File
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("ошибка создания директории логов: %w", err)
		}
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		name := filepath.Join(opts.Dir, fmt.Sprintf("%s_%s.log", component, timestamp))
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
		}
		file = f
		sinks = append(sinks, zapcore.AddSync(f))
	}

	level := zap.NewAtomicLevelAt(opts.Level.zapLevel())
	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)
	l := newLogger(component, core, level, opts.Level)
	l.file = file
	return l, nil
}

// NewLoggerWithCore оборачивает готовое ядро zap (тесты, observer).
func NewLoggerWithCore(component string, core zapcore.Core) *Logger {
	return newLogger(component, core, zap.NewAtomicLevelAt(zapcore.DebugLevel), TRACE)
}

func newLogger(component string, core zapcore.Core, level zap.AtomicLevel, min LogLevel) *Logger {
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Named(component)
	ml := new(atomic.Int32)
	ml.Store(int32(min))
	return &Logger{
		component: component,
		level:     level,
		minLevel:  ml,
		base:      base,
		sugar:     base.Sugar(),
	}
}

// Component возвращает имя компонента.
func (l *Logger) Component() string { return l.component }

// SetLevel меняет уровень на лету.
func (l *Logger) SetLevel(level LogLevel) {
	l.minLevel.Store(int32(level))
	l.level.SetLevel(level.zapLevel())
}

// Zap отдаёт нижележащий *zap.Logger для библиотек, которые его принимают.
func (l *Logger) Zap() *zap.Logger { return l.base }

// With возвращает логгер с дополнительными полями.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		component: l.component,
		level:     l.level,
		minLevel:  l.minLevel,
		base:      l.base,
		sugar:     l.sugar.With(args...),
	}
}

func (l *Logger) Trace(format string, args ...interface{}) {
	if LogLevel(l.minLevel.Load()) > TRACE {
		return
	}
	l.sugar.Debugf("[TRACE] "+format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// Close сбрасывает буферы и закрывает файл.
func (l *Logger) Close() error {
	_ = l.base.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// InitDefaultLogger создаёт логгер по умолчанию для пакетных функций.
func InitDefaultLogger(component string) error {
	l, err := NewLogger(component)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	old := defaultLogger
	defaultLogger = l
	defaultMu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// SetDefaultLogger подменяет логгер по умолчанию (используется в тестах).
func SetDefaultLogger(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// CloseDefaultLogger закрывает логгер по умолчанию.
func CloseDefaultLogger() {
	defaultMu.Lock()
	l := defaultLogger
	defaultLogger = nil
	defaultMu.Unlock()
	if l != nil {
		_ = l.Close()
	}
}

func getDefault() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}
	return GetComponentLogger("default")
}

func Trace(format string, args ...interface{}) { getDefault().Trace(format, args...) }
func Debug(format string, args ...interface{}) { getDefault().Debug(format, args...) }
func Info(format string, args ...interface{})  { getDefault().Info(format, args...) }
func Warn(format string, args ...interface{})  { getDefault().Warn(format, args...) }
func Error(format string, args ...interface{}) { getDefault().Error(format, args...) }

// HexDump создает hex дамп данных
func HexDump(data []byte) string {
	if len(data) == 0 {
		return "No data"
	}

	// Ограничиваем размер дампа до 256 байт
	size := len(data)
	if size > 256 {
		size = 256
	}

	return hex.Dump(data[:size])
}

// LogProtocolError логирует ошибки декодирования протокола
func LogProtocolError(connID string, err error, data []byte) {
	l := GetNetworkLogger()
	l.Warn("Ошибка протокола от %s: %v", connID, err)
	if len(data) > 0 {
		l.Debug("Сырые данные (%d байт):\n%s", len(data), HexDump(data))
	}
}
