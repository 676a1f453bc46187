// Package runner spawns external analysis and render programs and parses
// their terminal JSON payload.
//
// The contract with external programs is narrow: diagnostics go to stderr
// (streamed line by line to the caller), the structured result is the last
// non-empty line of stdout, JSON-encoded. Any human-readable logging on other
// stdout lines is acceptable.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// LineFunc receives one diagnostic output line at a time, in real time.
// It is used for progress reporting and logging, never for control decisions.
type LineFunc func(line string)

// Result is the outcome of a successful invocation: either a structured
// payload parsed from the program's last stdout line, or the raw full output
// when that line was not JSON. Callers that require a structured payload
// treat an unstructured result as a stage failure.
type Result struct {
	Payload map[string]interface{}
	Raw     string
}

// Structured reports whether the program produced a parseable terminal payload
func (r Result) Structured() bool {
	return r.Payload != nil
}

// ErrorField returns the "error" field of the payload, if present
func (r Result) ErrorField() (string, bool) {
	if r.Payload == nil {
		return "", false
	}
	msg, ok := r.Payload["error"].(string)
	return msg, ok && msg != ""
}

// Invoke spawns program with the given positional arguments and waits for it
// to exit. On non-zero exit it fails with the captured stderr text. On zero
// exit it parses the last non-empty stdout line as JSON; if parsing fails the
// full stdout is returned as Raw instead of an error.
func Invoke(ctx context.Context, program string, args []string, onLine LineFunc) (Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("failed to start %s: %w", filepath.Base(program), err)
	}

	var stderr bytes.Buffer
	scanner := bufio.NewScanner(stderrPipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		stderr.WriteString(line)
		stderr.WriteByte('\n')
		if onLine != nil {
			onLine(line)
		}
	}

	if err := cmd.Wait(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return Result{}, fmt.Errorf("%s exited with error: %s", filepath.Base(program), diag)
	}

	return parseOutput(stdout.String()), nil
}

// parseOutput applies the last-line-JSON convention
func parseOutput(output string) Result {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return Result{Raw: output}
	}

	lines := strings.Split(trimmed, "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			last = l
			break
		}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(last), &payload); err != nil {
		return Result{Raw: output}
	}
	return Result{Payload: payload}
}
