// Package opener hands resolved note locators to the operating system.
package opener

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"pkm/backend/pkg/logger"
)

// SystemOpener runs the platform "open" command on a locator. Relative file
// paths are resolved against BaseDir, the directory holding the fact source.
type SystemOpener struct {
	BaseDir string
	Command []string // Command and leading args; the locator is appended
	logger  *zap.Logger
	run     func(ctx context.Context, name string, args ...string) error
}

// NewSystemOpener creates an opener. An empty command selects the platform default.
func NewSystemOpener(baseDir, command string) *SystemOpener {
	cmd := strings.Fields(command)
	if len(cmd) == 0 {
		cmd = defaultCommand(runtime.GOOS)
	}
	return &SystemOpener{
		BaseDir: baseDir,
		Command: cmd,
		logger:  logger.Get(),
		run:     runCommand,
	}
}

func defaultCommand(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"open"}
	case "windows":
		return []string{"rundll32", "url.dll,FileProtocolHandler"}
	default:
		return []string{"xdg-open"}
	}
}

// Open launches the configured command for locator and waits for it to exit
func (o *SystemOpener) Open(ctx context.Context, locator string) error {
	target := o.Target(locator)
	args := append(append([]string{}, o.Command[1:]...), target)

	o.logger.Debug("Opening note",
		zap.String("locator", locator),
		zap.String("target", target),
		zap.String("command", o.Command[0]),
	)
	if err := o.run(ctx, o.Command[0], args...); err != nil {
		return fmt.Errorf("%s %s: %w", o.Command[0], target, err)
	}
	return nil
}

// Target returns what is passed to the open command: URIs unchanged, relative
// paths joined onto BaseDir
func (o *SystemOpener) Target(locator string) string {
	if isURI(locator) || filepath.IsAbs(locator) || o.BaseDir == "" {
		return locator
	}
	return filepath.Join(o.BaseDir, locator)
}

// isURI reports whether locator carries a scheme such as https: or file:.
// Single-letter schemes are Windows drive letters, not URIs.
func isURI(locator string) bool {
	u, err := url.Parse(locator)
	return err == nil && len(u.Scheme) > 1
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}
