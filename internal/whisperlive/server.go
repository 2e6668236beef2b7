package whisperlive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Backend pins the transcription engine inside whisper_live. Other engines
// need launcher flags this tool does not expose.
const Backend = "faster_whisper"

const defaultGracePeriod = 5 * time.Second

// bootstrap is the shim handed to the interpreter via -c. It only forwards
// launcher parameters into whisper_live; model loading, sessions and the wire
// protocol all live server-side.
const bootstrap = `import sys
from whisper_live.server import TranscriptionServer

host = sys.argv[1]
port = int(sys.argv[2])
backend = sys.argv[3]
custom_model_path = sys.argv[4] or None
single_model = sys.argv[5] == "1"

TranscriptionServer().run(
    host,
    port=port,
    backend=backend,
    faster_whisper_custom_model_path=custom_model_path,
    single_model=single_model,
)
`

type Options struct {
	Host            string
	Port            int
	CustomModelPath string
	SingleModel     bool
	Python          string
	GracePeriod     time.Duration
	Stdout          io.Writer
	Stderr          io.Writer
	Logger          *zap.Logger
}

// Server supervises one whisper_live server process.
type Server struct {
	interpreter string
	opts        Options
	logger      *zap.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Host == "" {
		return nil, errors.New("host is required")
	}
	if opts.Port < 1 || opts.Port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", opts.Port)
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = defaultGracePeriod
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	interpreter, err := ResolveInterpreter(opts.Python)
	if err != nil {
		return nil, err
	}

	return &Server{interpreter: interpreter, opts: opts, logger: opts.Logger}, nil
}

// Interpreter returns the resolved Python executable.
func (s *Server) Interpreter() string {
	return s.interpreter
}

// Args returns the child argv after the interpreter path. The custom model
// path slot is always present; an empty value means no custom path.
func (s *Server) Args() []string {
	single := "0"
	if s.opts.SingleModel {
		single = "1"
	}

	return []string{
		"-c", bootstrap,
		s.opts.Host,
		strconv.Itoa(s.opts.Port),
		Backend,
		s.opts.CustomModelPath,
		single,
	}
}

// Run starts the server process and blocks until it exits. Cancelling ctx
// sends an interrupt to the child and waits up to the grace period before
// killing it; an exit caused by that interrupt is reported as ctx.Err(), not
// as a process failure.
func (s *Server) Run(ctx context.Context) error {
	tail := newTailBuffer(2048)
	cmd := exec.Command(s.interpreter, s.Args()...)
	cmd.Stdout = s.stdout()
	cmd.Stderr = io.MultiWriter(s.stderr(), tail)

	s.logger.Info("starting transcription server",
		zap.String("interpreter", s.interpreter),
		zap.String("host", s.opts.Host),
		zap.Int("port", s.opts.Port),
		zap.String("backend", Backend),
		zap.String("custom_model_path", s.opts.CustomModelPath),
		zap.Bool("single_model", s.opts.SingleModel),
	)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.interpreter, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return s.exitError(err, tail)
	case <-ctx.Done():
	}

	stopSignalSent := cmd.Process.Signal(os.Interrupt) == nil

	timer := time.NewTimer(s.opts.GracePeriod)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			if stopSignalSent {
				s.logger.Debug("server exited after stop signal", zap.Error(err))
			} else if exitErr := s.exitError(err, tail); exitErr != nil {
				return exitErr
			}
		}
		return ctx.Err()
	case <-timer.C:
		s.logger.Warn("server ignored interrupt, killing process", zap.Duration("grace", s.opts.GracePeriod))
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}

func (s *Server) exitError(err error, tail *tailBuffer) error {
	if err == nil {
		return nil
	}

	errText := lastLine(tail.String())
	if isModuleNotFoundError(errText) {
		return fmt.Errorf("whisper_live is not importable by %s; run `%s -m pip install whisper-live` (%s)", s.interpreter, s.interpreter, errText)
	}
	if errText != "" {
		return fmt.Errorf("transcription server exited: %w (%s)", err, errText)
	}
	return fmt.Errorf("transcription server exited: %w", err)
}

func (s *Server) stdout() io.Writer {
	if s.opts.Stdout != nil {
		return s.opts.Stdout
	}
	return os.Stdout
}

func (s *Server) stderr() io.Writer {
	if s.opts.Stderr != nil {
		return s.opts.Stderr
	}
	return os.Stderr
}

// tailBuffer keeps the last max bytes written to it, for error diagnostics on
// a long-running child whose stderr is otherwise passed through.
type tailBuffer struct {
	mu   sync.Mutex
	max  int
	data []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, p...)
	if overflow := len(b.data) - b.max; overflow > 0 {
		b.data = b.data[overflow:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}
