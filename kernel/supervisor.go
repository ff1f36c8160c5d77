//go:build !windows

package kernel

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dmora/kernelrun"
	"github.com/dmora/kernelrun/wire"
)

// Start launches a kernel process from executable with workdir as its
// working directory, connects the three channels over freshly allocated
// ephemeral ports, and performs the introspection handshake. On bind or
// handshake failure the whole sequence is retried with fresh ports and
// a fresh signing key, bounded by the configured RetryPolicy.
//
// The returned handle owns the process, sockets, and execution queue
// exclusively. Callers must Dispose it when done.
func Start(ctx context.Context, executable, workdir string, opts ...Option) (kernelrun.Kernel, error) {
	o := resolveOptions(opts...)
	log := o.Logger

	resolved, err := exec.LookPath(executable)
	if err != nil {
		return nil, fmt.Errorf("kernelrun: %s: %w", executable, err)
	}

	var lastErr error
	for attempt := 1; attempt <= o.Retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			log.Info("retrying kernel startup",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-time.After(o.Retry.Backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		k, err := startOnce(ctx, resolved, workdir, o)
		if err == nil {
			return k, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// startOnce performs a single startup attempt: ports, key, connection
// file, process, sockets, handshake.
func startOnce(ctx context.Context, executable, workdir string, o Options) (*instance, error) {
	ports, err := allocatePorts()
	if err != nil {
		return nil, err
	}

	key, err := newSigningKey()
	if err != nil {
		return nil, err
	}
	signer, err := wire.NewSigner(o.SignatureScheme, key)
	if err != nil {
		return nil, err
	}

	connFile, err := writeConnectionFile(ports, key, o.SignatureScheme)
	if err != nil {
		return nil, err
	}

	proc, err := spawnKernel(executable, workdir, o, connFile)
	if err != nil {
		_ = os.Remove(connFile)
		return nil, err
	}

	// Sockets live for the instance's lifetime, not the Start call's.
	instCtx, cancel := context.WithCancel(context.Background())
	c, err := dialConn(instCtx, ports, signer, o.Logger)
	if err != nil {
		cancel()
		proc.kill()
		_ = os.Remove(connFile)
		return nil, err
	}

	hsCtx, hsCancel := context.WithCancel(ctx)
	err = c.awaitReady(hsCtx, o.HandshakeTimeout, proc.exited)
	hsCancel()
	if err != nil {
		_ = c.close()
		cancel()
		proc.kill()
		_ = os.Remove(connFile)
		return nil, fmt.Errorf("kernelrun: handshake: %w", err)
	}

	o.Logger.Info("kernel ready",
		zap.Int("pid", proc.cmd.Process.Pid),
		zap.Int("shell_port", ports.Shell),
		zap.Int("iopub_port", ports.IOPub),
		zap.Int("control_port", ports.Control))

	return newInstance(instCtx, cancel, c, proc, connFile, o), nil
}

// kernelProc is a spawned kernel process plus its exit observation.
type kernelProc struct {
	cmd     *exec.Cmd
	exited  chan struct{}
	exitErr error // valid after exited closes
}

// spawnKernel builds the argv from the template, wires stdout/stderr
// into the logger, starts the process, and begins watching for exit.
func spawnKernel(executable, workdir string, o Options, connFile string) (*kernelProc, error) {
	cmd := exec.Command(executable, renderArgs(o.KernelArgs, connFile)...)
	if workdir != "" {
		cmd.Dir = workdir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("kernelrun: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("kernelrun: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("kernelrun: start %s: %w", executable, err)
	}

	// Diagnostics only — the process streams are not part of the protocol.
	go logStream(o.Logger, "stdout", stdout)
	go logStream(o.Logger, "stderr", stderr)

	p := &kernelProc{cmd: cmd, exited: make(chan struct{})}
	go func() {
		p.exitErr = wrapExitError(cmd.Wait())
		close(p.exited)
	}()
	return p, nil
}

// terminate sends SIGTERM, waits out the grace period (or ctx), and
// escalates to SIGKILL. Returns once the process has exited.
func (p *kernelProc) terminate(ctx context.Context, grace time.Duration) {
	_ = signalProcess(p.cmd.Process, syscall.SIGTERM)
	select {
	case <-p.exited:
	case <-time.After(grace):
		_ = signalProcess(p.cmd.Process, os.Kill)
		<-p.exited
	case <-ctx.Done():
		_ = signalProcess(p.cmd.Process, os.Kill)
		<-p.exited
	}
}

// kill forcefully terminates the process and waits for exit.
func (p *kernelProc) kill() {
	_ = signalProcess(p.cmd.Process, os.Kill)
	<-p.exited
}

// renderArgs substitutes the connection file path into the argv template.
func renderArgs(template []string, connFile string) []string {
	args := make([]string, 0, len(template))
	for _, a := range template {
		args = append(args, strings.ReplaceAll(a, connectionFilePlaceholder, connFile))
	}
	return args
}

// signalProcess sends sig to a process, returning nil if the process
// has already exited.
func signalProcess(proc *os.Process, sig os.Signal) error {
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// wrapExitError converts a non-zero *exec.ExitError to
// *kernelrun.ExitError, preserving the chain via Unwrap.
func wrapExitError(err error) error {
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return err
	}
	code := ee.ExitCode()
	if code == 0 {
		return nil
	}
	return &kernelrun.ExitError{Code: code, Err: err}
}

// logStream pumps one process output stream into the logger, line by line.
func logStream(log *zap.Logger, name string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debug("kernel "+name, zap.String("line", scanner.Text()))
	}
}

// allocatePorts grabs three ephemeral TCP ports by binding port 0 and
// releasing. All three listeners are held simultaneously so the ports
// are distinct.
func allocatePorts() (Ports, error) {
	listeners := make([]net.Listener, 0, 3)
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	ports := make([]int, 0, 3)
	for range 3 {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return Ports{}, fmt.Errorf("kernelrun: allocate port: %w", err)
		}
		listeners = append(listeners, l)
		ports = append(ports, l.Addr().(*net.TCPAddr).Port)
	}
	return Ports{Control: ports[0], Shell: ports[1], IOPub: ports[2]}, nil
}

// newSigningKey generates a fresh per-instance shared secret.
func newSigningKey() ([]byte, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("kernelrun: signing key: %w", err)
	}
	// Hex so the key survives the JSON connection file unmangled.
	return []byte(hex.EncodeToString(raw)), nil
}

// connectionFile is the startup handoff read by the kernel process: the
// channel ports, signing key, and scheme.
type connectionFile struct {
	ControlPort     int    `json:"control_port"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	HBPort          int    `json:"hb_port"`
	IP              string `json:"ip"`
	Transport       string `json:"transport"`
	Key             string `json:"key"`
	SignatureScheme string `json:"signature_scheme"`
}

// writeConnectionFile persists the connection info for the kernel to
// read at startup. Returns the file path; the instance removes it on
// Dispose.
func writeConnectionFile(ports Ports, key []byte, scheme string) (string, error) {
	info := connectionFile{
		ControlPort:     ports.Control,
		ShellPort:       ports.Shell,
		IOPubPort:       ports.IOPub,
		IP:              "127.0.0.1",
		Transport:       "tcp",
		Key:             string(key),
		SignatureScheme: scheme,
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("kernelrun: marshal connection file: %w", err)
	}

	f, err := os.CreateTemp("", "kernelrun-*.json")
	if err != nil {
		return "", fmt.Errorf("kernelrun: connection file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("kernelrun: write connection file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("kernelrun: close connection file: %w", err)
	}
	return filepath.Clean(path), nil
}
