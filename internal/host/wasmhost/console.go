//go:build js && wasm

package wasmhost

import (
	"strings"
	"syscall/js"

	"go.uber.org/zap/zapcore"
)

type consoleSink struct{ console js.Value }

// ConsoleSink returns a zap sink that writes each log line to the page console.
func ConsoleSink() zapcore.WriteSyncer {
	return consoleSink{console: js.Global().Get("console")}
}

func (c consoleSink) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	method := "log"
	switch {
	case strings.Contains(line, "ERROR"), strings.Contains(line, `"level":"error"`):
		method = "error"
	case strings.Contains(line, "WARN"), strings.Contains(line, `"level":"warn"`):
		method = "warn"
	}
	c.console.Call(method, line)
	return len(p), nil
}

func (consoleSink) Sync() error { return nil }
