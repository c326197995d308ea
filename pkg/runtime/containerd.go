package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/ankaios-core/internal/logging"
	"github.com/cuemby/ankaios-core/pkg/naming"
	"github.com/cuemby/ankaios-core/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace every workload this
	// facade manages is created in.
	DefaultNamespace = "ankaios"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	labelInstanceName = "ankaios.instance_name"
	labelAgentName    = "ankaios.agent_name"

	controlInterfaceMountPoint = "/run/ankaios/control_interface"
)

// ContainerdFacade implements Facade on top of containerd. Workloads are
// labeled with their canonical instance name so GetReusableWorkloads and
// GetWorkloadID can find them again by label filter after a restart.
type ContainerdFacade struct {
	client    *containerd.Client
	namespace string
	dataDir   string // per-workload file materialization root
	logDir    string // per-workload stdio log files
}

// NewContainerdFacade dials containerd over socketPath. dataDir and
// logDir are created on demand as workloads are created.
func NewContainerdFacade(socketPath, dataDir, logDir string) (*ContainerdFacade, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}
	return &ContainerdFacade{
		client:    client,
		namespace: DefaultNamespace,
		dataDir:   dataDir,
		logDir:    logDir,
	}, nil
}

// Close releases the containerd client connection.
func (r *ContainerdFacade) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Name implements Facade.
func (r *ContainerdFacade) Name() string { return "containerd" }

// runtimeConfig is the subset of a podman-like runtime_config YAML blob
// this facade understands: an image reference, a command override, an
// environment map, and optional resource limits.
type runtimeConfig struct {
	Image            string            `yaml:"image"`
	CommandArgs      []string          `yaml:"commandArgs"`
	Env              map[string]string `yaml:"env"`
	CPULimit         float64           `yaml:"cpuLimit"`
	MemoryLimitBytes int64             `yaml:"memoryLimitBytes"`
}

func parseRuntimeConfig(raw string) (runtimeConfig, error) {
	var cfg runtimeConfig
	if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
		return runtimeConfig{}, fmt.Errorf("parse runtime config: %w", err)
	}
	if cfg.Image == "" {
		return runtimeConfig{}, fmt.Errorf("runtime config missing required 'image' field")
	}
	return cfg, nil
}

// GetReusableWorkloads implements Facade.
func (r *ContainerdFacade) GetReusableWorkloads(ctx context.Context, agentName string) ([]ReusableWorkloadState, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	filter := fmt.Sprintf(`labels.%q==%q`, labelAgentName, agentName)
	containers, err := r.client.Containers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list containers for agent %s: %w", agentName, err)
	}

	reusable := make([]ReusableWorkloadState, 0, len(containers))
	for _, c := range containers {
		labels, err := c.Labels(ctx)
		if err != nil {
			continue
		}
		instanceStr := labels[labelInstanceName]
		if instanceStr == "" {
			continue
		}
		parsed, err := naming.Parse(instanceStr)
		if err != nil {
			continue
		}
		reusable = append(reusable, ReusableWorkloadState{InstanceName: parsed, WorkloadID: c.ID()})
	}
	return reusable, nil
}

// CreateWorkload implements Facade. On any failure after the container
// object exists, it is deleted best-effort before the error is returned.
func (r *ContainerdFacade) CreateWorkload(ctx context.Context, instanceName naming.InstanceName, spec types.WorkloadSpec, reusableID string, controlInterfacePath string) (string, error) {
	if reusableID != "" {
		return reusableID, nil
	}

	ctx = namespaces.WithNamespace(ctx, r.namespace)
	cfg, err := parseRuntimeConfig(spec.RuntimeConfig)
	if err != nil {
		return "", err
	}

	image, err := r.client.GetImage(ctx, cfg.Image)
	if err != nil {
		image, err = r.client.Pull(ctx, cfg.Image, containerd.WithPullUnpack)
		if err != nil {
			return "", fmt.Errorf("pull image %s: %w", cfg.Image, err)
		}
	}

	opts := []oci.SpecOpts{oci.WithImageConfig(image)}
	if len(cfg.Env) > 0 {
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		opts = append(opts, oci.WithEnv(env))
	}
	if len(cfg.CommandArgs) > 0 {
		opts = append(opts, oci.WithProcessArgs(cfg.CommandArgs...))
	}
	if cfg.CPULimit > 0 {
		shares := uint64(cfg.CPULimit * 1024)
		quota := int64(cfg.CPULimit * 100000)
		opts = append(opts, oci.WithCPUShares(shares), oci.WithCPUCFS(quota, 100000))
	}
	if cfg.MemoryLimitBytes > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(cfg.MemoryLimitBytes)))
	}

	mounts, err := r.materializeFileMounts(instanceName, spec.Files)
	if err != nil {
		return "", fmt.Errorf("materialize files for %s: %w", instanceName, err)
	}
	if controlInterfacePath != "" {
		mounts = append(mounts, specs.Mount{
			Source:      controlInterfacePath,
			Destination: controlInterfaceMountPoint,
			Type:        "bind",
			Options:     []string{"rbind"},
		})
	}
	if len(mounts) > 0 {
		opts = append(opts, oci.WithMounts(mounts))
	}

	containerID := instanceName.String()
	ctrdContainer, err := r.client.NewContainer(
		ctx,
		containerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
		containerd.WithContainerLabels(map[string]string{
			labelInstanceName: instanceName.String(),
			labelAgentName:    instanceName.AgentName,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("create workload %s: %w", instanceName, err)
	}

	logPath := filepath.Join(r.logDir, containerID+".log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		_ = ctrdContainer.Delete(ctx, containerd.WithSnapshotCleanup)
		return "", fmt.Errorf("create log directory for %s: %w", instanceName, err)
	}

	task, err := ctrdContainer.NewTask(ctx, cio.LogFile(logPath))
	if err != nil {
		_ = ctrdContainer.Delete(ctx, containerd.WithSnapshotCleanup)
		return "", fmt.Errorf("create task for %s: %w", instanceName, err)
	}
	if err := task.Start(ctx); err != nil {
		_, _ = task.Delete(ctx)
		_ = ctrdContainer.Delete(ctx, containerd.WithSnapshotCleanup)
		return "", fmt.Errorf("start task for %s: %w", instanceName, err)
	}

	return ctrdContainer.ID(), nil
}

// materializeFileMounts writes each inline FileMount.Data to a file
// under the facade's data directory and returns the resulting bind
// mounts; entries with a non-empty Source instead bind-mount that host
// path directly.
func (r *ContainerdFacade) materializeFileMounts(instanceName naming.InstanceName, files []types.FileMount) ([]specs.Mount, error) {
	if len(files) == 0 {
		return nil, nil
	}
	mounts := make([]specs.Mount, 0, len(files))
	for i, f := range files {
		source := f.Source
		if source == "" {
			dir := filepath.Join(r.dataDir, instanceName.String(), "files")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
			source = filepath.Join(dir, fmt.Sprintf("%d", i))
			mode := os.FileMode(0o644)
			if f.Permissions != "" {
				if parsed, err := parseOctalMode(f.Permissions); err == nil {
					mode = parsed
				}
			}
			if err := os.WriteFile(source, f.Data, mode); err != nil {
				return nil, err
			}
		}
		mounts = append(mounts, specs.Mount{
			Source:      source,
			Destination: f.MountPoint,
			Type:        "bind",
			Options:     []string{"rbind", "ro"},
		})
	}
	return mounts, nil
}

func parseOctalMode(s string) (os.FileMode, error) {
	var mode uint32
	if _, err := fmt.Sscanf(s, "%o", &mode); err != nil {
		return 0, err
	}
	return os.FileMode(mode), nil
}

// GetWorkloadID implements Facade.
func (r *ContainerdFacade) GetWorkloadID(ctx context.Context, instanceName naming.InstanceName) (string, bool, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	filter := fmt.Sprintf(`labels.%q==%q`, labelInstanceName, instanceName.String())
	containers, err := r.client.Containers(ctx, filter)
	if err != nil {
		return "", false, fmt.Errorf("look up workload %s: %w", instanceName, err)
	}
	if len(containers) == 0 {
		return "", false, nil
	}
	return containers[0].ID(), true, nil
}

// pollChecker polls a container's task status on a fixed interval and
// reports transitions through send.
type pollChecker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *pollChecker) Stop() {
	p.cancel()
	<-p.done
}

// StartChecker implements Facade.
func (r *ContainerdFacade) StartChecker(_ context.Context, workloadID string, _ types.WorkloadSpec, send StateSender) (StateChecker, error) {
	checkerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		var last types.ExecutionState
		for {
			select {
			case <-checkerCtx.Done():
				return
			case <-ticker.C:
				state, err := r.observeState(checkerCtx, workloadID)
				if err != nil {
					logging.WithComponent("runtime").Debug().Err(err).Str("workload_id", workloadID).Msg("state check failed")
					continue
				}
				if state != last {
					last = state
					send(state)
				}
			}
		}
	}()

	return &pollChecker{cancel: cancel, done: done}, nil
}

func (r *ContainerdFacade) observeState(ctx context.Context, workloadID string) (types.ExecutionState, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	container, err := r.client.LoadContainer(ctx, workloadID)
	if err != nil {
		return types.FailedLost("container not found"), nil
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return types.PendingStarting(), nil
	}

	status, err := task.Status(ctx)
	if err != nil {
		return types.ExecutionState{}, fmt.Errorf("get task status: %w", err)
	}

	switch status.Status {
	case containerd.Running, containerd.Paused:
		return types.RunningOk(), nil
	case containerd.Stopped:
		if status.ExitStatus == 0 {
			return types.SucceededOk(), nil
		}
		return types.FailedExecFailed(fmt.Sprintf("exit code %d", status.ExitStatus)), nil
	default:
		return types.PendingStarting(), nil
	}
}

// followReader wraps an *os.File, blocking on EOF and retrying until ctx
// is done, which mimics `tail -f`.
type followReader struct {
	ctx context.Context
	f   *os.File
}

func (fr *followReader) Read(p []byte) (int, error) {
	for {
		n, err := fr.f.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		select {
		case <-fr.ctx.Done():
			return 0, io.EOF
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (fr *followReader) Close() error { return fr.f.Close() }

// GetLogFetcher implements Facade by reading the log file this facade
// writes each workload's stdio to at creation time.
func (r *ContainerdFacade) GetLogFetcher(ctx context.Context, workloadID string, options LogFetchOptions) (io.ReadCloser, error) {
	path := filepath.Join(r.logDir, workloadID+".log")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file for %s: %w", workloadID, err)
	}

	if options.Tail > 0 {
		if err := seekToTail(f, options.Tail); err != nil {
			f.Close()
			return nil, err
		}
	}

	if options.Follow {
		return &followReader{ctx: ctx, f: f}, nil
	}
	return f, nil
}

// seekToTail positions f just before the start of its last n lines. It
// reads backward in fixed-size chunks, prepending each to an
// accumulating buffer, until that buffer holds more than n newlines (or
// the start of the file is reached), then scans the buffer from its end
// to find the exact byte offset where the last n lines begin.
func seekToTail(f *os.File, n int) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	const chunkSize = 4096
	pos := info.Size()
	var buf []byte
	for pos > 0 {
		readSize := int64(chunkSize)
		if pos < readSize {
			readSize = pos
		}
		pos -= readSize
		chunk := make([]byte, readSize)
		if _, err := f.ReadAt(chunk, pos); err != nil && err != io.EOF {
			return err
		}
		buf = append(chunk, buf...)
		if bytes.Count(buf, []byte{'\n'}) > n {
			break
		}
	}

	start := 0
	count := 0
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i] == '\n' {
			count++
			if count == n+1 {
				start = i + 1
				break
			}
		}
	}

	_, err = f.Seek(pos+int64(start), io.SeekStart)
	return err
}

// DeleteWorkload implements Facade. A missing container is treated as
// success.
func (r *ContainerdFacade) DeleteWorkload(ctx context.Context, workloadID string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	container, err := r.client.LoadContainer(ctx, workloadID)
	if err != nil {
		return nil
	}

	if task, err := container.Task(ctx, nil); err == nil {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := task.Kill(stopCtx, syscall.SIGTERM); err == nil {
			statusC, waitErr := task.Wait(stopCtx)
			if waitErr == nil {
				select {
				case <-statusC:
				case <-stopCtx.Done():
					_ = task.Kill(ctx, syscall.SIGKILL)
				}
			}
		}
		_, _ = task.Delete(ctx)
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("delete workload %s: %w", workloadID, err)
	}
	return nil
}

var _ Facade = (*ContainerdFacade)(nil)

// facadesMu guards a process-wide registry of named facades so the
// runtime manager can select one by WorkloadSpec.RuntimeName without
// each workload queue needing a direct reference wired through.
var (
	facadesMu sync.Mutex
	facades   = map[string]Facade{}
)

// Register makes f available for lookup by its Name().
func Register(f Facade) {
	facadesMu.Lock()
	defer facadesMu.Unlock()
	facades[f.Name()] = f
}

// Lookup returns the registered facade for name, if any.
func Lookup(name string) (Facade, bool) {
	facadesMu.Lock()
	defer facadesMu.Unlock()
	f, ok := facades[name]
	return f, ok
}
