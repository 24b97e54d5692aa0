package seedfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Response headers carrying seed metadata.
const (
	HeaderSeedSignature = "X-Seed-Signature"
	HeaderCountry       = "X-Country"
	HeaderDate          = "Date"
	HeaderIM            = "IM"
)

var errSeedTooLarge = errors.New("seed exceeds size limit")

// Fetcher downloads the first-run seed at most once per initialized cycle.
// FetchSeed blocks on network I/O and is meant to be called off any
// latency-sensitive path.
type Fetcher struct {
	transport   SeedTransport
	store       SeedStore
	platform    Platform
	maxSeedSize int64

	log     zerolog.Logger
	metrics *Metrics
}

type Option func(*Fetcher)

func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) { f.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

func WithMaxSeedSize(n int64) Option {
	return func(f *Fetcher) { f.maxSeedSize = n }
}

func NewFetcher(transport SeedTransport, store SeedStore, platform Platform, opts ...Option) *Fetcher {
	f := &Fetcher{
		transport:   transport,
		store:       store,
		platform:    platform,
		maxSeedSize: DefaultMaxSeedSize,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchSeed makes one attempt to download and store the seed. Failures are
// logged and reflected in the Result; they never reach the caller as errors.
// Whatever the outcome, the store is marked initialized afterwards so later
// calls return ResultSkipped without touching the network.
func (f *Fetcher) FetchSeed(ctx context.Context, restrictGroup string) Result {
	done, err := f.attemptCompleted()
	if err != nil {
		f.log.Error().Err(err).Msg("read seed preferences")
		return ResultStoreError
	}
	if done {
		f.log.Debug().Msg("seed fetch already completed, skipping")
		return ResultSkipped
	}

	res := f.download(ctx, restrictGroup)

	if err := f.store.MarkInitialized(); err != nil {
		f.log.Error().Err(err).Msg("mark variations initialized")
		return ResultStoreError
	}
	return res
}

func (f *Fetcher) attemptCompleted() (bool, error) {
	initialized, err := f.store.Initialized()
	if err != nil || initialized {
		return initialized, err
	}
	return f.store.SeedStored()
}

func (f *Fetcher) download(ctx context.Context, restrictGroup string) Result {
	start := time.Now()
	seed, err := f.fetch(ctx, restrictGroup)

	var serverErr *ServerError
	var transportErr *TransportError
	switch {
	case errors.As(err, &serverErr):
		f.metrics.observeStatus(serverErr.StatusCode)
		f.log.Warn().Int("status", serverErr.StatusCode).Msg("non-OK response code")
		return ResultServerError
	case errors.As(err, &transportErr):
		f.metrics.observeTransportError(transportErr.Kind)
		f.log.Warn().Err(err).Str("kind", transportErr.Kind).Msg("failed to fetch seed")
		return ResultTransportError
	}
	f.metrics.observeStatus(seed.StatusCode)

	if err := f.store.SaveSeed(seed.State()); err != nil {
		f.log.Error().Err(err).Msg("store seed")
		return ResultStoreError
	}
	f.metrics.observeStored(time.Since(start), len(seed.Payload))
	f.log.Info().
		Str("platform", f.platform.String()).
		Str("country", seed.Country).
		Bool("gzip", seed.IsGzipCompressed).
		Str("size", formatBytes(int64(len(seed.Payload)))).
		Dur("took", time.Since(start)).
		Msg("stored seed")
	return ResultStored
}

func (f *Fetcher) fetch(ctx context.Context, restrictGroup string) (SeedResponse, error) {
	start := time.Now()
	resp, err := f.transport.Open(ctx, f.platform, restrictGroup)
	if err != nil {
		return SeedResponse{}, newTransportError("connect", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SeedResponse{StatusCode: resp.StatusCode}, &ServerError{StatusCode: resp.StatusCode}
	}
	f.metrics.observeConnect(time.Since(start))

	body, err := readAllLimited(resp.Body, f.maxSeedSize)
	if err != nil {
		return SeedResponse{}, newTransportError("read", err)
	}

	return SeedResponse{
		StatusCode:       resp.StatusCode,
		Signature:        resp.Header.Get(HeaderSeedSignature),
		Country:          resp.Header.Get(HeaderCountry),
		Date:             resp.Header.Get(HeaderDate),
		IsGzipCompressed: resp.Header.Get(HeaderIM) == "gzip",
		Payload:          body,
	}, nil
}

func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w (%s)", errSeedTooLarge, formatBytes(limit))
	}
	return b, nil
}
