// Package klog is the HAL's minimal formatted logger (spec §4.K): the
// cluster, every core's interrupt table, and the trap table write through
// here rather than calling fmt directly (the mmu package does not log), and
// output funnels to a single write sink so
// callers can swap it for a serial port or a virtual TTY.
package klog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a log line.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelColors = map[Level]string{
	DEBUG: "\033[36m",
	INFO:  "\033[32m",
	WARN:  "\033[33m",
	ERROR: "\033[31m",
	FATAL: "\033[35m",
}

const colorReset = "\033[0m"

// bootID stamps every line emitted in this process so concurrent test runs
// and real boots don't interleave indistinguishably in a shared sink.
var bootID = uuid.New().String()[:8]

// sink is the shared, lockable write destination. Per spec §4.K, calling
// the logger while another core holds the output lock is not guaranteed to
// avoid interleaving from interrupt context; the mutex here protects the
// underlying io.Writer, not callers racing from a signal handler.
var sink struct {
	mu sync.Mutex
	w  io.Writer
}

func init() {
	sink.w = os.Stdout
}

// SetOutput redirects every Logger's output to w. Intended for tests.
func SetOutput(w io.Writer) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.w = w
}

// Field is a key/value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

func String(k, v string) Field          { return Field{k, v} }
func Int(k string, v int) Field         { return Field{k, v} }
func Uint(k string, v uint) Field       { return Field{k, v} }
func Uint64(k string, v uint64) Field   { return Field{k, v} }
func Bool(k string, v bool) Field       { return Field{k, v} }
func Err(err error) Field               { return Field{"error", err} }
func Any(k string, v interface{}) Field { return Field{k, v} }

func (f Field) format() string {
	switch v := f.Value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Logger is a component-tagged formatter over the shared sink.
type Logger struct {
	level     Level
	component string
	colorize  bool
}

// New returns a Logger tagged with component, logging at minLevel and
// above.
func New(component string, minLevel Level) *Logger {
	return &Logger{level: minLevel, component: component, colorize: true}
}

func (l *Logger) With(component string) *Logger {
	return &Logger{level: l.level, component: component, colorize: l.colorize}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(INFO, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(WARN, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(ERROR, msg, fields...) }

// Panic logs at FATAL and invokes halt, which must not return. Used by
// kpanic (spec §7): an invariant violation terminates the calling core, not
// the whole process.
func (l *Logger) Panic(halt func(), msg string, fields ...Field) {
	l.log(FATAL, msg, fields...)
	halt()
}

func (l *Logger) log(level Level, msg string, fields ...Field) {
	if level < l.level {
		return
	}

	var b strings.Builder
	if l.colorize {
		b.WriteString(levelColors[level])
	}
	b.WriteString("[")
	b.WriteString(time.Now().Format("15:04:05.000"))
	b.WriteString("] [")
	b.WriteString(bootID)
	b.WriteString("] [")
	b.WriteString(fmt.Sprintf("%-5s", levelNames[level]))
	b.WriteString("]")
	if l.component != "" {
		b.WriteString(" [")
		b.WriteString(l.component)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(msg)
	for _, f := range fields {
		b.WriteString(" ")
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(f.format())
	}
	if l.colorize {
		b.WriteString(colorReset)
	}
	b.WriteString("\n")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	io.WriteString(sink.w, b.String())
}
