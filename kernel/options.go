package kernel

import (
	"time"

	"go.uber.org/zap"

	"github.com/dmora/kernelrun/wire"
)

// Default configuration values.
const (
	defaultHandshakeTimeout = 30 * time.Second
	defaultInterruptTimeout = time.Second
	defaultGracePeriod      = 5 * time.Second
	defaultRetryAttempts    = 3
	defaultRetryBackoff     = 500 * time.Millisecond
)

// connectionFilePlaceholder in a kernel argv is replaced with the path
// of the generated connection file.
const connectionFilePlaceholder = "{connection_file}"

// defaultKernelArgs launch an IPython-compatible kernel from a plain
// interpreter executable.
var defaultKernelArgs = []string{"-m", "ipykernel_launcher", "-f", connectionFilePlaceholder}

// RetryPolicy bounds the fresh-ports retry loop around kernel startup.
// Every attempt allocates new ports, a new signing key, and a new
// process; Backoff separates consecutive attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Options holds resolved construction-time configuration for a kernel
// instance.
type Options struct {
	// HandshakeTimeout is the deadline for the introspection handshake
	// during Start.
	HandshakeTimeout time.Duration

	// InterruptTimeout is how long Interrupt waits for the kernel's
	// reply before reporting failure.
	InterruptTimeout time.Duration

	// GracePeriod is the duration to wait after SIGTERM before sending
	// SIGKILL during Dispose.
	GracePeriod time.Duration

	// Retry bounds startup attempts on bind or handshake failure.
	Retry RetryPolicy

	// KernelArgs is the argv template appended to the executable.
	// Occurrences of "{connection_file}" are replaced with the path of
	// the generated connection file.
	KernelArgs []string

	// SignatureScheme is the HMAC digest algorithm name for message
	// signing. Defaults to wire.SchemeSHA256.
	SignatureScheme string

	// Logger receives lifecycle, retry, and dropped-frame diagnostics.
	// Defaults to zap.NewNop().
	Logger *zap.Logger
}

// Option configures a kernel instance at Start time.
type Option func(*Options)

// resolveOptions applies functional options over the defaults.
func resolveOptions(opts ...Option) Options {
	o := Options{
		HandshakeTimeout: defaultHandshakeTimeout,
		InterruptTimeout: defaultInterruptTimeout,
		GracePeriod:      defaultGracePeriod,
		Retry:            RetryPolicy{MaxAttempts: defaultRetryAttempts, Backoff: defaultRetryBackoff},
		KernelArgs:       defaultKernelArgs,
		SignatureScheme:  wire.SchemeSHA256,
		Logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHandshakeTimeout sets the deadline for the startup handshake.
// Values <= 0 are ignored.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.HandshakeTimeout = d
		}
	}
}

// WithInterruptTimeout sets how long Interrupt waits for a reply.
// Values <= 0 are ignored.
func WithInterruptTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.InterruptTimeout = d
		}
	}
}

// WithGracePeriod sets the duration to wait after SIGTERM before
// sending SIGKILL. Values <= 0 are ignored.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.GracePeriod = d
		}
	}
}

// WithRetryPolicy bounds the startup retry loop. MaxAttempts < 1 is
// clamped to 1.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Options) {
		if p.MaxAttempts < 1 {
			p.MaxAttempts = 1
		}
		o.Retry = p
	}
}

// WithKernelArgs replaces the argv template appended to the executable.
func WithKernelArgs(args ...string) Option {
	return func(o *Options) {
		o.KernelArgs = args
	}
}

// WithSignatureScheme sets the HMAC digest algorithm for message signing.
func WithSignatureScheme(scheme string) Option {
	return func(o *Options) {
		if scheme != "" {
			o.SignatureScheme = scheme
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Options) {
		if log != nil {
			o.Logger = log
		}
	}
}
