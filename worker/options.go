package worker

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultMinContentLength is the shortest cleaned text a worker accepts.
	DefaultMinContentLength = 50

	// DefaultMaxBodyBytes caps how much of a response the URL worker reads.
	DefaultMaxBodyBytes = 10 << 20

	// DefaultUserAgent identifies the URL worker to servers.
	DefaultUserAgent = "gleanit/1.0 (+https://github.com/poiesic/gleanit)"

	defaultFetchTimeout = 30 * time.Second
)

type options struct {
	logger           *slog.Logger
	chunking         bool
	minContentLength int
	httpClient       *http.Client
	userAgent        string
	maxBodyBytes     int64
	pageCounter      PageCounter
}

func defaultOptions() *options {
	return &options{
		logger:           slog.Default(),
		chunking:         true,
		minContentLength: DefaultMinContentLength,
		httpClient:       &http.Client{Timeout: defaultFetchTimeout},
		userAgent:        DefaultUserAgent,
		maxBodyBytes:     DefaultMaxBodyBytes,
		pageCounter:      CountPDFPages,
	}
}

func applyOptions(opts []Option) (*options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Option configures a worker.
type Option func(*options) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithChunking controls whether finished objects are handed to the chunking
// coordinator (the default) or the job is completed right away.
func WithChunking(enabled bool) Option {
	return func(o *options) error {
		o.chunking = enabled
		return nil
	}
}

// WithMinContentLength sets the shortest cleaned text, in runes, that is
// worth indexing.
func WithMinContentLength(length int) Option {
	return func(o *options) error {
		if length < 1 {
			length = 1
		}
		o.minContentLength = length
		return nil
	}
}

// WithHTTPClient sets the client the URL worker fetches with.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) error {
		if client != nil {
			o.httpClient = client
		}
		return nil
	}
}

// WithUserAgent sets the User-Agent header for fetches.
func WithUserAgent(userAgent string) Option {
	return func(o *options) error {
		if userAgent != "" {
			o.userAgent = userAgent
		}
		return nil
	}
}

// WithMaxBodyBytes caps the size of a fetched page.
func WithMaxBodyBytes(limit int64) Option {
	return func(o *options) error {
		if limit > 0 {
			o.maxBodyBytes = limit
		}
		return nil
	}
}

// WithPageCounter replaces the PDF validity check.
func WithPageCounter(counter PageCounter) Option {
	return func(o *options) error {
		if counter != nil {
			o.pageCounter = counter
		}
		return nil
	}
}
