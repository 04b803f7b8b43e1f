package exec

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

type SandboxLimits struct {
	WallTime  time.Duration
	MemoryB   int64
	NanoCPUs  int64
	PidsLimit int64
}

// Sandbox runs one program in a throwaway container with no network and a
// read-only root filesystem.
type Sandbox struct {
	cli    client.APIClient
	image  string
	limits SandboxLimits
}

func NewDockerClient() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

func NewSandbox(cli client.APIClient, image string, limits SandboxLimits) *Sandbox {
	return &Sandbox{cli: cli, image: image, limits: limits}
}

// Run copies the source file into a fresh container and executes cmds in
// order, stopping at the first non-zero exit. stdin is fed to the last step.
func (s *Sandbox) Run(ctx context.Context, fileName string, code, stdin []byte, cmds [][]string,
	stdout, stderr io.Writer) (exit int, timedOut bool, err error) {

	ctx, cancel := context.WithTimeout(ctx, s.limits.WallTime)
	defer cancel()

	pids := s.limits.PidsLimit
	hostCfg := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Mounts: []mount.Mount{
			{Type: mount.TypeTmpfs, Target: "/tmp"},
			{Type: mount.TypeTmpfs, Target: "/workspace"},
		},
		Resources: container.Resources{
			Memory:   s.limits.MemoryB,
			NanoCPUs: s.limits.NanoCPUs,
		},
		SecurityOpt: []string{"no-new-privileges"},
	}
	if pids > 0 {
		hostCfg.Resources.PidsLimit = &pids
	}

	conf := &container.Config{
		Image:      s.image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: "/workspace",
	}

	create, err := s.cli.ContainerCreate(ctx, conf, hostCfg, nil, nil, "")
	if err != nil {
		return 0, deadlineHit(ctx), err
	}
	cid := create.ID
	defer func() {
		_ = s.cli.ContainerRemove(context.Background(), cid, types.ContainerRemoveOptions{Force: true})
	}()

	if err := s.cli.ContainerStart(ctx, cid, types.ContainerStartOptions{}); err != nil {
		return 0, deadlineHit(ctx), err
	}
	if err := s.copyFile(ctx, cid, "/workspace/"+fileName, code, 0o600); err != nil {
		return 0, deadlineHit(ctx), err
	}

	for i, cmd := range cmds {
		var input []byte
		if i == len(cmds)-1 {
			input = stdin
		}
		status, err := s.execStep(ctx, cid, cmd, input, stdout, stderr)
		if err != nil {
			if deadlineHit(ctx) {
				return -1, true, nil
			}
			return 0, false, err
		}
		if status != 0 {
			return status, false, nil
		}
	}
	return 0, false, nil
}

func (s *Sandbox) execStep(ctx context.Context, cid string, cmd []string, stdin []byte, stdout, stderr io.Writer) (int, error) {
	execResp, err := s.cli.ContainerExecCreate(ctx, cid, types.ExecConfig{
		Cmd:          cmd,
		WorkingDir:   "/workspace",
		AttachStdin:  len(stdin) > 0,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return 0, err
	}
	// Attaching starts the exec.
	attach, err := s.cli.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return 0, err
	}
	defer attach.Close()

	if len(stdin) > 0 {
		if _, err := attach.Conn.Write(stdin); err != nil {
			return 0, err
		}
		_ = attach.CloseWrite()
	}

	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, attach.Reader)
		copied <- err
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case err := <-copied:
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
	}

	inspect, err := s.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return 0, err
	}
	return inspect.ExitCode, nil
}

func (s *Sandbox) copyFile(ctx context.Context, cid, absPath string, content []byte, mode int64) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name: absPath[1:],
		Mode: mode,
		Size: int64(len(content)),
	}); err != nil {
		return err
	}
	if _, err := tw.Write(content); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return s.cli.CopyToContainer(ctx, cid, "/", &buf, types.CopyToContainerOptions{})
}

func deadlineHit(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}
