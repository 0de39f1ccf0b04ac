package build

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/benaskins/devmode/internal/logbuf"
)

const containerWorkdir = "/workspace"

// ContainerConfig holds configuration for running the build inside Docker.
type ContainerConfig struct {
	Image       string            // e.g. "maven:3-eclipse-temurin-21"
	Command     string            // tool inside the image, e.g. "mvn -B"
	Args        []string          // placed before the goals
	Env         []string
	Volumes     map[string]string // host:container mounts besides the project
	Pull        bool              // pull the image before the first build
	StopTimeout time.Duration
	Output      *logbuf.Ring
}

// Container runs each build in a fresh container with the project root
// mounted at /workspace. The container is removed after every build.
type Container struct {
	cfg       ContainerConfig
	argv      []string
	client    *dockerclient.Client
	pullOnce  sync.Once
	pullErr   error
	closeOnce sync.Once
}

func NewContainer(cfg ContainerConfig) (*Container, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("container build requires an image")
	}
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	argv := slices.Concat(strings.Fields(cfg.Command), cfg.Args)
	return &Container{cfg: cfg, argv: argv, client: cli}, nil
}

func (c *Container) Run(ctx context.Context, req Request) (Result, error) {
	if len(c.argv) == 0 {
		return Result{ExitCode: -1}, ErrNoCommand
	}
	if err := c.pull(ctx); err != nil {
		return Result{ExitCode: -1}, err
	}

	binds := []string{req.Root + ":" + containerWorkdir}
	for host, cont := range c.cfg.Volumes {
		binds = append(binds, host+":"+cont)
	}

	config := &container.Config{
		Image:      c.cfg.Image,
		Cmd:        slices.Concat(c.argv, req.Goals),
		Env:        c.cfg.Env,
		WorkingDir: containerWorkdir,
	}
	hostConfig := &container.HostConfig{
		Binds: binds,
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyDisabled,
		},
	}

	resp, err := c.client.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("creating build container: %w", err)
	}
	id := resp.ID
	defer c.client.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})

	started := time.Now()
	if err := c.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("starting build container: %w", err)
	}

	logsDone := c.streamLogs(id)

	statusCh, errCh := c.client.ContainerWait(context.Background(), id, container.WaitConditionNotRunning)

	select {
	case status := <-statusCh:
		<-logsDone
		res := Result{ExitCode: int(status.StatusCode), Duration: time.Since(started)}
		if status.Error != nil {
			return res, fmt.Errorf("build container: %s", status.Error.Message)
		}
		return res, nil

	case err := <-errCh:
		return Result{ExitCode: -1, Duration: time.Since(started)}, fmt.Errorf("waiting for build container: %w", err)

	case <-ctx.Done():
		// docker stop sends SIGTERM and escalates to SIGKILL after the timeout
		secs := int(c.cfg.StopTimeout.Seconds())
		_ = c.client.ContainerStop(context.Background(), id, container.StopOptions{Timeout: &secs})
		res := Result{ExitCode: -1}
		select {
		case status := <-statusCh:
			res.ExitCode = int(status.StatusCode)
		case <-errCh:
		}
		res.Duration = time.Since(started)
		return res, fmt.Errorf("build cancelled: %w", ctx.Err())
	}
}

func (c *Container) pull(ctx context.Context) error {
	if !c.cfg.Pull {
		return nil
	}
	c.pullOnce.Do(func() {
		rc, err := c.client.ImagePull(ctx, c.cfg.Image, image.PullOptions{})
		if err != nil {
			c.pullErr = fmt.Errorf("pulling %s: %w", c.cfg.Image, err)
			return
		}
		defer rc.Close()
		_, _ = io.Copy(io.Discard, rc)
	})
	return c.pullErr
}

// streamLogs copies container output into the ring until the container
// exits. Docker multiplexes stdout/stderr with frame headers that StdCopy
// strips.
func (c *Container) streamLogs(id string) <-chan struct{} {
	done := make(chan struct{})
	var out io.Writer = io.Discard
	if c.cfg.Output != nil {
		c.cfg.Output.Reset()
		out = c.cfg.Output
	}
	go func() {
		defer close(done)
		reader, err := c.client.ContainerLogs(context.Background(), id, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
		})
		if err != nil {
			return
		}
		defer reader.Close()
		_, _ = stdcopy.StdCopy(out, out, reader)
	}()
	return done
}

// Close releases the Docker client.
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.client.Close()
	})
	return err
}
