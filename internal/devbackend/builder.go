package devbackend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/logging"
	"github.com/GriffinCanCode/forgestudio/internal/shared/paths"
)

// exitStartFailed is reported when a command cannot be started
const exitStartFailed = 127

// Builder runs the build commands of a workspace in order
type Builder struct {
	commands [][]string
	logger   *zap.Logger
}

// NewBuilder parses each command line into fields. Quoting is not
// interpreted.
func NewBuilder(commands []string, logger *zap.Logger) *Builder {
	b := &Builder{logger: logging.OrNop(logger)}
	for _, line := range commands {
		if fields := strings.Fields(line); len(fields) > 0 {
			b.commands = append(b.commands, fields)
		}
	}
	return b
}

// Run executes the commands in dir, passing every output line to emit.
// It stops at the first failing command and returns its exit code.
func (b *Builder) Run(ctx context.Context, dir string, emit func(line string)) int {
	for _, argv := range b.commands {
		emit("$ " + strings.Join(argv, " "))
		if code := b.run(ctx, dir, argv, emit); code != 0 {
			return code
		}
	}
	return 0
}

func (b *Builder) run(ctx context.Context, dir string, argv []string, emit func(string)) int {
	pr, pw := io.Pipe()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "PUB_CACHE="+paths.Project{Root: dir}.PubCache())
	// stdout and stderr share one stream so lines keep their order
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		emit(fmt.Sprintf("failed to start %s: %v", argv[0], err))
		return exitStartFailed
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(pr)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			emit(strings.TrimRight(sc.Text(), "\r"))
		}
		// Drain so the command never blocks on a full pipe
		io.Copy(io.Discard, pr)
	}()

	err := cmd.Wait()
	pw.Close()
	<-done

	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode()
	}
	b.logger.Warn("Build command failed", zap.Strings("argv", argv), zap.Error(err))
	return 1
}
