// Package cloud implements the client of the device management cloud.
// The client lists devices and creates or updates the attachment of a device.
package cloud

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/estimote/attachments-migration/internal/constants"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var (
	// ErrMissingCredentials is returned when the application identifier or token is empty.
	ErrMissingCredentials = errors.New("application id and token are required")
	// ErrInvalidServerURL is returned when the server URL is not an absolute http(s) URL.
	ErrInvalidServerURL = errors.New("server URL must be an absolute http or https URL")
)

var tracer = otel.Tracer(constants.TracerName)

// Credentials identify the application against the cloud.
type Credentials struct {
	ServerURL string
	AppID     string
	AppToken  string
}

// Client talks to the device management cloud on behalf of one application.
type Client struct {
	creds      Credentials
	baseURL    *url.URL
	httpClient *http.Client
	dryRun     bool
	simulated  *dryRunAttachments

	out   io.Writer
	outMu *sync.Mutex
	log   *slog.Logger
}

type options struct {
	httpClient *http.Client
	timeout    time.Duration
	dryRun     bool
	out        io.Writer
	logger     *slog.Logger
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithHTTPClient sets the HTTP client used to send requests. It takes precedence over WithTimeout.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithTimeout sets the timeout of every request sent to the cloud.
func WithTimeout(d time.Duration) Options {
	return func(o *options) {
		o.timeout = d
	}
}

// WithDryRun makes the client issue read requests only. Writes are logged and reported as if they succeeded.
func WithDryRun(dryRun bool) Options {
	return func(o *options) {
		o.dryRun = dryRun
	}
}

// WithOutput sets where confirmation messages are printed.
func WithOutput(w io.Writer) Options {
	return func(o *options) {
		o.out = w
	}
}

// WithLogger sets the logger used by the client.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New returns a new Client for the given credentials.
func New(creds Credentials, args ...Options) (Client, error) {
	if creds.AppID == "" || creds.AppToken == "" {
		return Client{}, ErrMissingCredentials
	}

	u, err := url.Parse(creds.ServerURL)
	if err != nil {
		return Client{}, fmt.Errorf("%w: %v", ErrInvalidServerURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Client{}, fmt.Errorf("%w: %q", ErrInvalidServerURL, creds.ServerURL)
	}

	opts := options{
		timeout: constants.DefaultRequestTimeout,
		out:     os.Stdout,
		logger:  slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	if opts.httpClient == nil {
		opts.httpClient = &http.Client{
			Timeout:   opts.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	opts.logger.Debug("Creating new cloud client", "server", u.Redacted(), "app", creds.AppID, "dryRun", opts.dryRun)

	return Client{
		creds:      creds,
		baseURL:    u,
		httpClient: opts.httpClient,
		dryRun:     opts.dryRun,
		simulated:  newDryRunAttachments(),
		out:        opts.out,
		outMu:      &sync.Mutex{},
		log:        opts.logger,
	}, nil
}
