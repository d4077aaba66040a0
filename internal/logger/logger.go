package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger writes category-tagged log lines to the console (colored) and to a
// log file under ./logs. All methods are safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	minLevel Level
}

func NewLogger() *Logger {
	l := &Logger{minLevel: LevelInfo}

	if os.Getenv("LOG_LEVEL") == "debug" {
		l.minLevel = LevelDebug
	}

	if err := os.MkdirAll("logs", 0o755); err == nil {
		path := filepath.Join("logs", "conference-payments.log")
		if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			l.file = f
		}
	}

	return l
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

var levelColors = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l *Logger) write(level Level, category, message string) {
	if level < l.minLevel {
		return
	}

	ts := time.Now().Format("2006-01-02 15:04:05.000")
	line := fmt.Sprintf("[%s] [%s] [%s] %s", ts, levelNames[level], category, message)

	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := levelColors[level]; ok {
		c.Fprintln(os.Stdout, line)
	} else {
		fmt.Fprintln(os.Stdout, line)
	}

	if l.file != nil {
		fmt.Fprintln(l.file, line)
	}
}

func (l *Logger) Debug(category, message string) { l.write(LevelDebug, category, message) }
func (l *Logger) Info(category, message string)  { l.write(LevelInfo, category, message) }
func (l *Logger) Warn(category, message string)  { l.write(LevelWarn, category, message) }
func (l *Logger) Error(category, message string) { l.write(LevelError, category, message) }

func (l *Logger) Fatal(category, message string) {
	l.write(LevelError, category, message)
	l.Close()
	os.Exit(1)
}

// LogProcess records a lifecycle step (startup, shutdown, component init).
func (l *Logger) LogProcess(stage, message string) {
	l.write(LevelInfo, "PROCESS:"+stage, message)
}

// LogDatabase records a database operation against the named backend.
func (l *Logger) LogDatabase(operation, backend, message string) {
	l.write(LevelInfo, "DB:"+backend, fmt.Sprintf("[%s] %s", operation, message))
}

// LogKafka records broker activity for a topic or component.
func (l *Logger) LogKafka(operation, topic, message string) {
	l.write(LevelInfo, "KAFKA:"+topic, fmt.Sprintf("[%s] %s", operation, message))
}

// LogAPI records a completed HTTP request.
func (l *Logger) LogAPI(method, path, status, duration string) {
	l.write(LevelInfo, "API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

// LogPayment records payment lifecycle activity for a payment or intent id.
func (l *Logger) LogPayment(stage, id, message string) {
	l.write(LevelInfo, "PAYMENT", fmt.Sprintf("[%s] [%s] %s", stage, id, message))
}

// LogOrder records order lifecycle activity for an order id.
func (l *Logger) LogOrder(stage, orderID, message string) {
	l.write(LevelInfo, "ORDER", fmt.Sprintf("[%s] [%s] %s", stage, orderID, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.write(LevelWarn, "SECURITY", fmt.Sprintf("[%s] %s", event, message))
}
