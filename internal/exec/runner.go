package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"velvetcode/internal/metrics"
	"velvetcode/internal/models"
)

const defaultMaxOutput = 64 << 10

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrEmptyCode           = errors.New("code must not be empty")
)

// Executor runs a program and reports its output.
type Executor interface {
	Run(ctx context.Context, req models.RunRequest) (models.RunResult, error)
}

// program is one sandboxed execution; Sandbox implements it.
type program interface {
	Run(ctx context.Context, fileName string, code, stdin []byte, cmds [][]string, stdout, stderr io.Writer) (int, bool, error)
}

type Runner struct {
	limits     SandboxLimits
	maxOutput  int
	newSandbox func(image string, limits SandboxLimits) program
}

// NewRunner returns a Runner backed by the local Docker daemon.
func NewRunner(limits SandboxLimits) (*Runner, error) {
	cli, err := NewDockerClient()
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Runner{
		limits:    limits,
		maxOutput: defaultMaxOutput,
		newSandbox: func(image string, limits SandboxLimits) program {
			return NewSandbox(cli, image, limits)
		},
	}, nil
}

func (r *Runner) Run(ctx context.Context, req models.RunRequest) (models.RunResult, error) {
	spec, ok := LookupLanguage(string(req.Language))
	if !ok {
		metrics.RecordRun(string(req.Language), metrics.OutcomeError)
		return models.RunResult{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)
	}
	if strings.TrimSpace(req.Code) == "" {
		metrics.RecordRun(string(spec.Name), metrics.OutcomeError)
		return models.RunResult{}, ErrEmptyCode
	}

	stdout := &cappedBuffer{limit: r.maxOutput}
	stderr := &cappedBuffer{limit: r.maxOutput}
	sbx := r.newSandbox(spec.Image, r.limits)
	exit, timedOut, err := sbx.Run(ctx, spec.FileName, []byte(req.Code), []byte(req.Stdin), steps(spec), stdout, stderr)
	if err != nil && !timedOut {
		metrics.RecordRun(string(spec.Name), metrics.OutcomeError)
		return models.RunResult{}, err
	}

	metrics.RecordRun(string(spec.Name), metrics.OutcomeOK)
	return models.RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exit,
		TimedOut: timedOut,
	}, nil
}

// cappedBuffer keeps at most limit bytes and silently discards the rest.
type cappedBuffer struct {
	strings.Builder
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.Builder.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.Builder.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.Builder.String() + "\n[output truncated]"
	}
	return b.Builder.String()
}
