package trajexec

import (
	"runtime"
	"strings"
)

// panicStack captures the current goroutine's stack, trimmed so the report
// starts at the frame that actually panicked instead of the recovery
// plumbing.
func panicStack() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	lines := strings.Split(string(buf[:n]), "\n")

	// Drop everything up to and including the panic() call line and its file
	// reference line.
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			if i+2 < len(lines) {
				lines = lines[i+2:]
			}
			break
		}
	}
	return strings.Join(lines, "\n")
}
