package seedfetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	status int
	header http.Header
	body   io.Reader
	err    error

	opens       int
	gotPlatform Platform
	gotRestrict string
}

func (t *fakeTransport) Open(_ context.Context, platform Platform, restrictGroup string) (*http.Response, error) {
	t.opens++
	t.gotPlatform = platform
	t.gotRestrict = restrictGroup
	if t.err != nil {
		return nil, t.err
	}
	body := t.body
	if body == nil {
		body = strings.NewReader("")
	}
	return &http.Response{
		StatusCode: t.status,
		Header:     t.header,
		Body:       io.NopCloser(body),
	}, nil
}

func okSeedTransport() *fakeTransport {
	h := http.Header{}
	h.Set("X-Seed-Signature", "signature")
	h.Set("X-Country", "Nowhere Land")
	h.Set("Date", "A date")
	h.Set("IM", "gzip")
	return &fakeTransport{
		status: http.StatusOK,
		header: h,
		body:   strings.NewReader("1234"),
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func requireNoSeed(t *testing.T, s *Store) {
	t.Helper()
	has, err := s.HasSeed()
	require.NoError(t, err)
	assert.False(t, has)
	for _, name := range []string{PrefSeedBase64, PrefSeedSignature, PrefSeedCountry, PrefSeedDate, PrefSeedIsGzipCompressed} {
		_, ok, err := s.GetString(name)
		require.NoError(t, err)
		assert.False(t, ok, "%s should not be set", name)
	}
}

func requireInitialized(t *testing.T, s *Store) {
	t.Helper()
	ok, err := s.Initialized()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFetchSeed(t *testing.T) {
	store := newTestStore(t)
	tr := okSeedTransport()
	f := NewFetcher(tr, store, PlatformAndroid)

	res := f.FetchSeed(context.Background(), "")
	assert.Equal(t, ResultStored, res)
	assert.Equal(t, 1, tr.opens)
	assert.Equal(t, PlatformAndroid, tr.gotPlatform)
	assert.Equal(t, "", tr.gotRestrict)

	seed, err := store.LoadSeed()
	require.NoError(t, err)
	assert.Equal(t, "signature", seed.Signature)
	assert.Equal(t, "Nowhere Land", seed.Country)
	assert.Equal(t, "A date", seed.Date)
	assert.True(t, seed.IsGzipCompressed)
	assert.Equal(t, "MTIzNA==", seed.PayloadBase64)

	payload, err := seed.Payload()
	require.NoError(t, err)
	assert.Equal(t, []byte("1234"), payload)
	requireInitialized(t, store)
}

func TestFetchSeed_NotGzip(t *testing.T) {
	store := newTestStore(t)
	tr := okSeedTransport()
	tr.header.Set("IM", "x-bm,gzip")
	f := NewFetcher(tr, store, PlatformAndroid)

	require.Equal(t, ResultStored, f.FetchSeed(context.Background(), ""))
	seed, err := store.LoadSeed()
	require.NoError(t, err)
	assert.False(t, seed.IsGzipCompressed)
}

func TestFetchSeed_ForwardsRestrictGroup(t *testing.T) {
	store := newTestStore(t)
	tr := okSeedTransport()
	f := NewFetcher(tr, store, PlatformAndroidWebView)

	f.FetchSeed(context.Background(), "dev")
	assert.Equal(t, PlatformAndroidWebView, tr.gotPlatform)
	assert.Equal(t, "dev", tr.gotRestrict)
}

func TestFetchSeed_NoFetchNeeded(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.MarkInitialized())
	tr := okSeedTransport()
	f := NewFetcher(tr, store, PlatformAndroid)

	assert.Equal(t, ResultSkipped, f.FetchSeed(context.Background(), ""))
	assert.Equal(t, 0, tr.opens)
	requireNoSeed(t, store)
}

func TestFetchSeed_SeedAlreadyTaken(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.PutBool(PrefSeedStored, true))
	tr := okSeedTransport()
	f := NewFetcher(tr, store, PlatformAndroid)

	assert.Equal(t, ResultSkipped, f.FetchSeed(context.Background(), ""))
	assert.Equal(t, 0, tr.opens)
}

func TestFetchSeed_BadResponse(t *testing.T) {
	store := newTestStore(t)
	tr := okSeedTransport()
	tr.status = http.StatusNotFound
	f := NewFetcher(tr, store, PlatformAndroid)

	assert.Equal(t, ResultServerError, f.FetchSeed(context.Background(), ""))
	requireInitialized(t, store)
	requireNoSeed(t, store)
}

func TestFetchSeed_ConnectError(t *testing.T) {
	store := newTestStore(t)
	tr := &fakeTransport{err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
	f := NewFetcher(tr, store, PlatformAndroid)

	assert.Equal(t, ResultTransportError, f.FetchSeed(context.Background(), ""))
	assert.Equal(t, 1, tr.opens)
	requireInitialized(t, store)
	requireNoSeed(t, store)
}

func TestFetchSeed_ShortRead(t *testing.T) {
	store := newTestStore(t)
	tr := okSeedTransport()
	tr.body = io.MultiReader(strings.NewReader("12"), failingReader{err: io.ErrUnexpectedEOF})
	f := NewFetcher(tr, store, PlatformAndroid)

	assert.Equal(t, ResultTransportError, f.FetchSeed(context.Background(), ""))
	requireInitialized(t, store)
	requireNoSeed(t, store)
}

func TestFetchSeed_TooLarge(t *testing.T) {
	store := newTestStore(t)
	tr := okSeedTransport()
	f := NewFetcher(tr, store, PlatformAndroid, WithMaxSeedSize(3))

	assert.Equal(t, ResultTransportError, f.FetchSeed(context.Background(), ""))
	requireInitialized(t, store)
	requireNoSeed(t, store)
}

func TestFetchSeed_ExactlyAtLimit(t *testing.T) {
	store := newTestStore(t)
	f := NewFetcher(okSeedTransport(), store, PlatformAndroid, WithMaxSeedSize(4))

	assert.Equal(t, ResultStored, f.FetchSeed(context.Background(), ""))
}

func TestFetchSeed_Idempotent(t *testing.T) {
	store := newTestStore(t)
	tr := okSeedTransport()
	f := NewFetcher(tr, store, PlatformAndroid)

	require.Equal(t, ResultStored, f.FetchSeed(context.Background(), ""))
	assert.Equal(t, ResultSkipped, f.FetchSeed(context.Background(), ""))
	assert.Equal(t, 1, tr.opens)
}

func TestFetchSeed_AfterReset(t *testing.T) {
	store := newTestStore(t)
	tr := &fakeTransport{status: http.StatusServiceUnavailable}
	f := NewFetcher(tr, store, PlatformAndroid)

	require.Equal(t, ResultServerError, f.FetchSeed(context.Background(), ""))
	require.NoError(t, store.ResetInitialized())

	ok := okSeedTransport()
	f = NewFetcher(ok, store, PlatformAndroid)
	assert.Equal(t, ResultStored, f.FetchSeed(context.Background(), ""))
	assert.Equal(t, 1, ok.opens)
}

func TestFetchSeed_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	cases := []struct {
		name  string
		tr    *fakeTransport
		label string
	}{
		{"ok", okSeedTransport(), "200"},
		{"not found", &fakeTransport{status: http.StatusNotFound}, "404"},
		{"timeout", &fakeTransport{err: timeoutErr{}}, KindTimeout},
		{"unknown host", &fakeTransport{err: &net.DNSError{Err: "no such host", Name: "seed.invalid", IsNotFound: true}}, KindUnknownHost},
		{"io", &fakeTransport{err: errors.New("boom")}, KindIO},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFetcher(tc.tr, newTestStore(t), PlatformAndroid, WithMetrics(m))
			f.FetchSeed(context.Background(), "")
			assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues(tc.label)))
		})
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(m.seedBytes))
}

func TestFetchSeed_Logs(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	tr := &fakeTransport{status: http.StatusNotFound}
	f := NewFetcher(tr, newTestStore(t), PlatformAndroid, WithLogger(log))

	f.FetchSeed(context.Background(), "")
	assert.Contains(t, buf.String(), `"status":404`)
	assert.Contains(t, buf.String(), "non-OK response code")
}

type brokenStore struct {
	*Store
	saveErr error
}

func (s brokenStore) SaveSeed(SeedState) error { return s.saveErr }

func TestFetchSeed_StoreFailureStillMarksInitialized(t *testing.T) {
	store := newTestStore(t)
	f := NewFetcher(okSeedTransport(), brokenStore{Store: store, saveErr: errors.New("disk full")}, PlatformAndroid)

	assert.Equal(t, ResultStoreError, f.FetchSeed(context.Background(), ""))
	requireInitialized(t, store)
	requireNoSeed(t, store)
}
