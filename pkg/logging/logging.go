// pkg/logging/logging.go - timestamped application logging for the catalog client
//
// Lines are written to <configDir>/logs/app.log in the form
//
//	[2006-01-02 15:04:05.000] [INFO] message key=value
//
// and the file is trimmed to its most recent MaxLines lines on start and
// periodically afterwards. An optional events.jsonl sink carries the same
// entries as structured JSON.

package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/aviutl2catalog/catalog/pkg/config"
)

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string onto a LogLevel, defaulting to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

const timestampLayout = "2006-01-02 15:04:05.000"

// LogEntry is the structured form written to events.jsonl.
type LogEntry struct {
	Time       int64                  `json:"time"`
	Timestamp  string                 `json:"timestamp"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component"`
	PID        int                    `json:"pid"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Dir           string    // directory holding app.log
	FileName      string    // defaults to app.log
	Component     string    // component name recorded in structured entries
	Level         LogLevel  // most verbose level written
	MaxLines      int       // app.log is trimmed to this many lines
	PruneEvery    int       // writes between trims
	EnableJSON    bool      // also write events.jsonl
	EnableConsole bool      // mirror lines to Console
	Color         bool      // colourise console output
	Console       io.Writer // defaults to color.Output
}

// Logger encapsulates the file and console sinks.
type Logger struct {
	mu       sync.Mutex
	config   LoggerConfig
	path     string
	logFile  *os.File
	jsonFile *os.File
	writes   int
	console  io.Writer
	palette  map[LogLevel]*color.Color
}

// singleton instance and sync.Once for thread-safe initialization
var (
	instance *Logger
	once     sync.Once
)

// Init initializes the singleton Logger. It must be called before any
// logging functions are used; later calls are ignored.
func Init(cfg LoggerConfig) error {
	var initErr error
	once.Do(func() {
		instance, initErr = New(cfg)
	})
	return initErr
}

// InitFromConfig initializes the singleton from the application settings.
func InitFromConfig(cfg *config.Configuration, console bool) error {
	return Init(LoggerConfig{
		Dir:           cfg.LogDir(),
		Component:     "catalog",
		Level:         ParseLevel(cfg.LogLevel),
		MaxLines:      cfg.LogMaxLines,
		EnableJSON:    cfg.EnableJSONLog,
		EnableConsole: console,
		Color:         cfg.ConsoleColor,
	})
}

// New creates a Logger writing to cfg.Dir. Most callers want Init instead.
func New(cfg LoggerConfig) (*Logger, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("log directory is required")
	}
	if cfg.FileName == "" {
		cfg.FileName = "app.log"
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = config.DefaultLogMaxLines
	}
	if cfg.PruneEvery <= 0 {
		cfg.PruneEvery = 200
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{
		config:  cfg,
		path:    filepath.Join(cfg.Dir, cfg.FileName),
		console: cfg.Console,
		palette: map[LogLevel]*color.Color{
			LevelError: color.New(color.FgRed),
			LevelWarn:  color.New(color.FgYellow),
			LevelInfo:  color.New(color.Reset),
			LevelDebug: color.New(color.FgBlue),
		},
	}
	if l.console == nil {
		l.console = color.Output
	}
	if !cfg.Color {
		for _, c := range l.palette {
			c.DisableColor()
		}
	}

	if err := pruneFile(l.path, cfg.MaxLines); err != nil {
		fmt.Fprintf(os.Stderr, "log prune failed: %v\n", err)
	}
	if err := l.openFiles(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) openFiles() error {
	var err error
	l.logFile, err = os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open main log file: %w", err)
	}
	if l.config.EnableJSON && l.jsonFile == nil {
		jsonPath := filepath.Join(l.config.Dir, "events.jsonl")
		l.jsonFile, err = os.OpenFile(jsonPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open JSON log file: %w", err)
		}
	}
	return nil
}

// Path returns the main log file path.
func (l *Logger) Path() string { return l.path }

// Close closes all log files.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		l.logFile.Close()
		l.logFile = nil
	}
	if l.jsonFile != nil {
		l.jsonFile.Close()
		l.jsonFile = nil
	}
}

// CloseLogger closes the singleton's files if they're open.
func CloseLogger() {
	if instance == nil {
		return
	}
	instance.Close()
}

// Log writes one entry at the given level. keyValues are alternating
// key/value pairs.
func (l *Logger) Log(level LogLevel, message string, keyValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.config.Level || l.logFile == nil {
		return
	}

	now := time.Now()
	line := formatLine(now, level, message, keyValues)
	fmt.Fprintln(l.logFile, line)
	if l.config.EnableConsole {
		l.palette[level].Fprintln(l.console, line)
	}
	if l.jsonFile != nil {
		l.writeJSON(now, level, message, keyValues)
	}

	l.writes++
	if l.writes >= l.config.PruneEvery {
		l.writes = 0
		l.rotate()
	}
}

func (l *Logger) writeJSON(now time.Time, level LogLevel, message string, keyValues []interface{}) {
	entry := LogEntry{
		Time:       now.Unix(),
		Timestamp:  now.Format(time.RFC3339Nano),
		Level:      level.String(),
		Message:    message,
		Component:  l.config.Component,
		PID:        os.Getpid(),
		Properties: toProperties(keyValues),
	}
	if data, err := json.Marshal(entry); err == nil {
		l.jsonFile.Write(append(data, '\n'))
	}
}

// rotate trims app.log in place. Called with l.mu held.
func (l *Logger) rotate() {
	if l.logFile != nil {
		l.logFile.Close()
		l.logFile = nil
	}
	if err := pruneFile(l.path, l.config.MaxLines); err != nil {
		fmt.Fprintf(os.Stderr, "log prune failed: %v\n", err)
	}
	if err := l.openFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "log reopen failed: %v\n", err)
	}
}

func formatLine(ts time.Time, level LogLevel, message string, keyValues []interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", ts.Format(timestampLayout), level.String(), message)

	pairs := len(keyValues) / 2
	for i := 0; i+1 < len(keyValues); i += 2 {
		if pairs > 4 {
			fmt.Fprintf(&b, "\n        %v: %v", keyValues[i], keyValues[i+1])
		} else {
			fmt.Fprintf(&b, " %v=%v", keyValues[i], keyValues[i+1])
		}
	}
	return b.String()
}

func toProperties(keyValues []interface{}) map[string]interface{} {
	if len(keyValues) < 2 {
		return nil
	}
	props := make(map[string]interface{}, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		v := keyValues[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		props[fmt.Sprintf("%v", keyValues[i])] = v
	}
	return props
}

// pruneFile keeps only the last maxLines lines of path.
func pruneFile(path string, maxLines int) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, append([]byte(nil), sc.Bytes()...))
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(lines) <= maxLines {
		return nil
	}

	kept := bytes.Join(lines[len(lines)-maxLines:], []byte("\n"))
	return os.WriteFile(path, append(kept, '\n'), 0644)
}

// Info logs informational messages.
func Info(message string, keyValues ...interface{}) {
	if instance == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: INFO %s %v\n", message, keyValues)
		return
	}
	instance.Log(LevelInfo, message, keyValues...)
}

// Debug logs debug messages.
func Debug(message string, keyValues ...interface{}) {
	if instance == nil {
		return
	}
	instance.Log(LevelDebug, message, keyValues...)
}

// Warn logs warning messages.
func Warn(message string, keyValues ...interface{}) {
	if instance == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: WARN %s %v\n", message, keyValues)
		return
	}
	instance.Log(LevelWarn, message, keyValues...)
}

// Error logs error messages.
func Error(message string, keyValues ...interface{}) {
	if instance == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: ERROR %s %v\n", message, keyValues)
		return
	}
	instance.Log(LevelError, message, keyValues...)
}

// LogStructured logs a message with a property map; keys are emitted in
// sorted order so lines are stable.
func LogStructured(level LogLevel, message string, properties map[string]interface{}) {
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		kv = append(kv, k, properties[k])
	}

	switch level {
	case LevelError:
		Error(message, kv...)
	case LevelWarn:
		Warn(message, kv...)
	case LevelDebug:
		Debug(message, kv...)
	default:
		Info(message, kv...)
	}
}
