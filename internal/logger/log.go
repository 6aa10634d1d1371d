package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel maps a level name to a Level. Unknown names fall back to INFO
// and report ok=false.
func ParseLevel(name string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG, true
	case "INFO", "":
		return INFO, true
	case "WARN", "WARNING":
		return WARN, true
	case "ERROR":
		return ERROR, true
	default:
		return INFO, false
	}
}

// Logger is a leveled printf-style logger. Loggers derived with With share
// the parent's output and lock.
type Logger struct {
	level     Level
	component string
	mu        *sync.Mutex
	out       *log.Logger
}

// New returns a logger writing to stderr.
func New(level string) *Logger {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter returns a logger writing to w.
func NewWithWriter(level string, w io.Writer) *Logger {
	lvl, _ := ParseLevel(level)
	flags := log.LstdFlags | log.Lmicroseconds
	return &Logger{
		level: lvl,
		mu:    &sync.Mutex{},
		out:   log.New(w, "", flags),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	l := NewWithWriter("ERROR", io.Discard)
	l.level = ERROR + 1
	return l
}

// With returns a logger whose lines are tagged with component.
func (l *Logger) With(component string) *Logger {
	c := *l
	if c.component != "" {
		c.component = c.component + "/" + component
	} else {
		c.component = component
	}
	return &c
}

// Level reports the minimum level that is written.
func (l *Logger) Level() Level {
	return l.level
}

func (l *Logger) logf(lvl Level, format string, args ...interface{}) {
	if l == nil || lvl < l.level {
		return
	}
	prefix := "[" + lvl.String() + "] "
	if l.component != "" {
		prefix += "[" + l.component + "] "
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Output(3, prefix+fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(DEBUG, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(INFO, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(WARN, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(ERROR, format, args...)
}

// Fields renders ctx as "k=v" pairs in key order.
func Fields(ctx map[string]interface{}) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, ctx[k]))
	}
	return strings.Join(parts, " ")
}
