package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// State tracks the runner's progress through the pipeline steps.
type State string

const (
	StateIdle       State = "idle"
	StateConnected  State = "connected"
	StateUploaded   State = "uploaded"
	StateExecuted   State = "executed"
	StateDownloaded State = "downloaded"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// DialFunc opens a connection to the remote host.
type DialFunc func(Config) (ClientInterface, error)

// Runner drives one pipeline run: connect, upload, execute, download, in
// strict order, short-circuiting on the first failing step.
type Runner struct {
	file      *PipelineFile
	sshConfig Config
	dial      DialFunc
	out       io.Writer
	state     State
	runID     string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithOutput sets the writer step progress and command output are echoed to.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *Runner) {
		r.out = w
	}
}

// WithSSHConfig sets credential and host-key options for the connection.
// Host and user always come from the configuration file.
func WithSSHConfig(cfg Config) RunnerOption {
	return func(r *Runner) {
		r.sshConfig = cfg
	}
}

// WithDialFunc overrides how the runner connects. Used in tests.
func WithDialFunc(dial DialFunc) RunnerOption {
	return func(r *Runner) {
		r.dial = dial
	}
}

// NewRunner creates a Runner for the given configuration file.
func NewRunner(file *PipelineFile, opts ...RunnerOption) *Runner {
	r := &Runner{
		file:  file,
		out:   os.Stdout,
		state: StateIdle,
		runID: uuid.NewString(),
		dial: func(cfg Config) (ClientInterface, error) {
			return NewClient(cfg)
		},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// State returns the runner's current state.
func (r *Runner) State() State {
	return r.state
}

// RunID returns the unique identifier of this run.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes the named pipeline: validates its configuration, connects,
// uploads inputPath to the pipeline's remote input directory, runs the
// formatted command, and downloads the remote output directory to
// outputPath. The first failing step aborts the run; the connection is
// released on every exit path.
func (r *Runner) Run(ctx context.Context, name, inputPath, outputPath string) error {
	pipeline, err := r.file.Pipeline(name)
	if err != nil {
		return r.fail(err)
	}

	cfg := r.sshConfig
	cfg.Host = r.file.Remote.Host
	cfg.User = r.file.Remote.User

	r.stepf("connecting to %s as %s", cfg.Host, cfg.User)
	client, err := r.dial(cfg.WithDefaults())
	if err != nil {
		return r.fail(fmt.Errorf("failed to connect to remote host: %w", err))
	}
	defer client.Close()
	r.state = StateConnected

	r.stepf("transferring input files to %s", pipeline.RemotePaths.InputDir)
	if _, err := client.UploadTree(ctx, inputPath, pipeline.RemotePaths.InputDir); err != nil {
		return r.fail(fmt.Errorf("failed to transfer input files: %w", err))
	}
	r.state = StateUploaded

	cmd, err := FormatCommand(pipeline.Command, *pipeline.RemotePaths)
	if err != nil {
		return r.fail(err)
	}

	r.stepf("executing pipeline command: %s", cmd)
	result, err := client.RunCommand(ctx, cmd)
	if err != nil {
		if result != nil && result.Stderr != "" {
			fmt.Fprintln(r.out, "remote command failed:")
			fmt.Fprint(r.out, result.Stderr)
		}
		return r.fail(fmt.Errorf("pipeline command failed: %w", err))
	}
	if result.Stdout != "" {
		fmt.Fprintln(r.out, "remote command output:")
		fmt.Fprint(r.out, result.Stdout)
	}
	r.state = StateExecuted

	r.stepf("transferring results to %s", outputPath)
	if _, err := client.DownloadTree(ctx, pipeline.RemotePaths.OutputDir, outputPath); err != nil {
		return r.fail(fmt.Errorf("failed to transfer results: %w", err))
	}
	r.state = StateDownloaded

	r.stepf("pipeline %q completed successfully", name)
	r.state = StateDone
	return nil
}

func (r *Runner) fail(err error) error {
	r.state = StateFailed
	return err
}

func (r *Runner) stepf(format string, args ...any) {
	fmt.Fprintf(r.out, "[run %s] %s\n", r.runID[:8], fmt.Sprintf(format, args...))
}
