// Package screenshot shells out to an external capture tool. Capture
// failures (timeout, non-zero exit, unreadable output) are non-fatal; the
// capture cycle is simply skipped.
package screenshot

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// DefaultTimeout bounds one capture invocation.
const DefaultTimeout = 10 * time.Second

// Capturer runs a configured command that writes a raster file to disk.
// The output path is appended as the command's final argument.
type Capturer struct {
	Command []string
	Timeout time.Duration
}

// New creates a Capturer for the given argv. Timeout falls back to
// DefaultTimeout when non-positive.
func New(command []string, timeout time.Duration) *Capturer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Capturer{Command: command, Timeout: timeout}
}

// Capture invokes the tool and returns the captured image bytes.
func (c *Capturer) Capture(ctx context.Context) ([]byte, error) {
	if len(c.Command) == 0 {
		return nil, fmt.Errorf("no capture command configured")
	}

	out := filepath.Join(os.TempDir(), fmt.Sprintf("clipstash-shot-%d.png", time.Now().UnixNano()))
	defer os.Remove(out)

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	args := append(append([]string{}, c.Command[1:]...), out)
	cmd := exec.CommandContext(ctx, c.Command[0], args...)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("capture command: %w", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read capture output: %w", err)
	}
	return data, nil
}
