package logger

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Leveled logger for the auth service. Messages are printf-style; Entry adds
// key=value fields rendered after the message.

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	mu     sync.RWMutex
	logger *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
)

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Unknown values fall back to info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	level = parseLevel(l)
}

func parseLevel(l string) Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	}
	return LevelInfo
}

func header(lvl string) string {
	return fmt.Sprintf("%s [%s] ", time.Now().UTC().Format(time.RFC3339), strings.ToUpper(lvl))
}

func shouldLog(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func output(l Level, name, fields, format string, v ...interface{}) {
	if !shouldLog(l) {
		return
	}
	logger.Print(header(name) + fmt.Sprintf(format, v...) + fields)
}

func Debugf(format string, v ...interface{}) { output(LevelDebug, "debug", "", format, v...) }
func Infof(format string, v ...interface{})  { output(LevelInfo, "info", "", format, v...) }
func Warnf(format string, v ...interface{})  { output(LevelWarn, "warn", "", format, v...) }
func Errorf(format string, v ...interface{}) { output(LevelError, "error", "", format, v...) }

func Fatalf(format string, v ...interface{}) {
	logger.Print(header("fatal") + fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Entry carries structured fields attached to every line it logs.
type Entry struct {
	fields map[string]interface{}
}

// With starts an Entry from alternating key/value pairs. A trailing key
// without a value is logged with value "(missing)".
func With(kv ...interface{}) *Entry {
	return (&Entry{}).With(kv...)
}

// With returns a copy of e extended with more fields.
func (e *Entry) With(kv ...interface{}) *Entry {
	fields := make(map[string]interface{}, len(e.fields)+len(kv)/2)
	for k, v := range e.fields {
		fields[k] = v
	}
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 < len(kv) {
			fields[key] = kv[i+1]
		} else {
			fields[key] = "(missing)"
		}
	}
	return &Entry{fields: fields}
}

func (e *Entry) render() string {
	if len(e.fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.fields[k])
	}
	return b.String()
}

func (e *Entry) Debugf(format string, v ...interface{}) {
	output(LevelDebug, "debug", e.render(), format, v...)
}

func (e *Entry) Infof(format string, v ...interface{}) {
	output(LevelInfo, "info", e.render(), format, v...)
}

func (e *Entry) Warnf(format string, v ...interface{}) {
	output(LevelWarn, "warn", e.render(), format, v...)
}

func (e *Entry) Errorf(format string, v ...interface{}) {
	output(LevelError, "error", e.render(), format, v...)
}

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}
