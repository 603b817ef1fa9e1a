package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// SandboxConfig holds container settings for the docker invoker.
type SandboxConfig struct {
	Image   string
	WorkDir string
	Network string
	Memory  int64
	CPUs    float64
}

// DockerInvoker runs each instruction inside a throwaway Docker container
// with the working directory bind-mounted at /workspace.
type DockerInvoker struct {
	client *client.Client
	cfg    SandboxConfig
}

// NewDockerInvoker creates a docker invoker for the given sandbox settings.
func NewDockerInvoker(cfg SandboxConfig) (*DockerInvoker, error) {
	if err := ValidateWorkDir(cfg.WorkDir); err != nil {
		return nil, err
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	return &DockerInvoker{client: cli, cfg: cfg}, nil
}

// Close releases the Docker client resources.
func (d *DockerInvoker) Close() error {
	return d.client.Close()
}

// Name returns the invoker identifier.
func (d *DockerInvoker) Name() string {
	return "docker"
}

// Invoke creates a container running the instruction under `sh -c`, waits
// for it bounded by timeout, and collects stdout/stderr separately. On
// expiry the container is force-removed, never left running.
func (d *DockerInvoker) Invoke(ctx context.Context, instruction string, timeout time.Duration) (*Result, error) {
	invCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		invCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	absPath, err := filepath.Abs(d.cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolving work directory: %w", err)
	}

	containerCfg := &container.Config{
		Image:      d.cfg.Image,
		Cmd:        []string{"sh", "-c", instruction},
		WorkingDir: "/workspace",
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: absPath,
				Target: "/workspace",
			},
		},
		Resources: container.Resources{
			Memory:   d.cfg.Memory,
			NanoCPUs: int64(d.cfg.CPUs * 1e9),
		},
	}
	switch d.cfg.Network {
	case "none":
		hostCfg.NetworkMode = "none"
	case "host":
		hostCfg.NetworkMode = "host"
	}

	start := time.Now()

	resp, err := d.client.ContainerCreate(invCtx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	// Removal uses a fresh context so cleanup survives cancellation.
	defer func() {
		_ = d.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}()

	if err := d.client.ContainerStart(invCtx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	statusCh, errCh := d.client.ContainerWait(invCtx, resp.ID, container.WaitConditionNotRunning)

	var exitCode int
	select {
	case err := <-errCh:
		if err != nil {
			elapsed := time.Since(start)
			if invCtx.Err() != nil {
				return &Result{
					ExitCode: TimeoutExitCode,
					Stderr:   "container timed out after " + timeout.String(),
					Duration: elapsed,
					TimedOut: invCtx.Err() == context.DeadlineExceeded,
				}, nil
			}
			return nil, fmt.Errorf("waiting for container: %w", err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	}

	stdout, stderr, logErr := d.logs(context.Background(), resp.ID)
	res := &Result{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Duration: time.Since(start),
	}
	if logErr != nil {
		return res, logErr
	}
	return res, nil
}

// logs retrieves the container's stdout and stderr as separate streams.
func (d *DockerInvoker) logs(ctx context.Context, containerID string) (string, string, error) {
	out, err := d.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("getting container logs: %w", err)
	}
	defer out.Close()

	var stdout, stderr strings.Builder
	if _, err := stdcopy.StdCopy(&stdout, &stderr, out); err != nil {
		return "", "", fmt.Errorf("reading container logs: %w", err)
	}

	return stdout.String(), stderr.String(), nil
}

// ParseMemory converts a memory string (e.g., "4g") to bytes.
func ParseMemory(mem string) (int64, error) {
	mem = strings.ToLower(strings.TrimSpace(mem))
	if mem == "" {
		return 0, nil
	}

	var multiplier int64 = 1
	if strings.HasSuffix(mem, "g") {
		multiplier = 1024 * 1024 * 1024
		mem = strings.TrimSuffix(mem, "g")
	} else if strings.HasSuffix(mem, "m") {
		multiplier = 1024 * 1024
		mem = strings.TrimSuffix(mem, "m")
	} else if strings.HasSuffix(mem, "k") {
		multiplier = 1024
		mem = strings.TrimSuffix(mem, "k")
	}

	var value int64
	if _, err := fmt.Sscanf(mem, "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid memory value: %s", mem)
	}

	return value * multiplier, nil
}

// ParseCPUs converts a CPU string to a float.
func ParseCPUs(cpus string) (float64, error) {
	cpus = strings.TrimSpace(cpus)
	if cpus == "" {
		return 0, nil
	}

	var value float64
	if _, err := fmt.Sscanf(cpus, "%f", &value); err != nil {
		return 0, fmt.Errorf("invalid CPU value: %s", cpus)
	}

	return value, nil
}

// dangerousPaths are system directories that should never be mounted.
var dangerousPaths = []string{
	"/etc", "/root", "/sys", "/proc", "/dev", "/boot",
	"/var/run", "/var/log", "/usr", "/bin", "/sbin", "/lib",
}

// ValidateWorkDir checks that the path is safe to mount into a container.
func ValidateWorkDir(workDir string) error {
	absPath, err := filepath.Abs(workDir)
	if err != nil {
		return fmt.Errorf("resolving work directory: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("work directory does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("work directory is not a directory: %s", absPath)
	}

	for _, dangerous := range dangerousPaths {
		if absPath == dangerous || strings.HasPrefix(absPath, dangerous+"/") {
			return fmt.Errorf("refusing to mount system directory: %s", absPath)
		}
	}

	return nil
}
