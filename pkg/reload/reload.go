// Package reload triggers a reload of the detection engine after its
// disable list has changed.
package reload

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Reloader asks the detection engine to pick up a new policy.
// Implementations must honor ctx deadlines; a deadline exceeded is a failure.
type Reloader interface {
	Reload(ctx context.Context) error
	Name() string
}

// Command runs an external command and treats a non-zero exit as failure.
type Command struct {
	Argv []string
}

// Systemctl returns a Command that runs `systemctl reload <service>`.
func Systemctl(service string) *Command {
	return &Command{Argv: []string{"systemctl", "reload", service}}
}

// Name implements Reloader.
func (c *Command) Name() string { return strings.Join(c.Argv, " ") }

// Reload implements Reloader.
func (c *Command) Reload(ctx context.Context) error {
	if len(c.Argv) == 0 {
		return errors.New("reload command is empty")
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	out, err := cmd.CombinedOutput()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", c.Name(), ctxErr)
	}
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("%s: %w", c.Name(), err)
		}
		return fmt.Errorf("%s: %w: %s", c.Name(), err, msg)
	}
	return nil
}

// Noop never touches the engine. Used for dry runs.
type Noop struct{}

// Name implements Reloader.
func (Noop) Name() string { return "noop" }

// Reload implements Reloader.
func (Noop) Reload(context.Context) error { return nil }

// Parse builds a Reloader from a command line such as "systemctl reload suricata"
// or "suricatasc -c reload-rules". An empty or "noop" command yields Noop.
func Parse(command string) Reloader {
	fields := strings.Fields(command)
	if len(fields) == 0 || (len(fields) == 1 && fields[0] == "noop") {
		return Noop{}
	}
	if len(fields) == 3 && fields[0] == "systemctl" && fields[1] == "reload" {
		return Systemctl(fields[2])
	}
	return &Command{Argv: fields}
}
