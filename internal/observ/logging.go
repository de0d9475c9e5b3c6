package observ

import (
	"os"

	"github.com/phuslu/log"
)

// Setup configures the process-wide JSON logger.
func Setup(level string) {
	log.DefaultLogger = log.Logger{
		Level:      log.ParseLevel(level),
		TimeField:  "ts",
		TimeFormat: "2006-01-02T15:04:05.999Z07:00",
		Writer:     &log.IOWriter{Writer: os.Stdout},
	}
}

// Log emits one structured event line.
func Log(event string, kv map[string]any) {
	e := log.Info()
	for k, v := range kv {
		e = e.Interface(k, v)
	}
	e.Msg(event)
}

// LogError emits one structured error line.
func LogError(event string, err error, kv map[string]any) {
	e := log.Error().Err(err)
	for k, v := range kv {
		e = e.Interface(k, v)
	}
	e.Msg(event)
}
