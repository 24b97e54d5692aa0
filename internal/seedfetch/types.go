package seedfetch

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Platform selects which seed the variations server hands out.
type Platform int

const (
	PlatformAndroid Platform = iota
	PlatformAndroidWebView
)

// OSName is the value sent in the osname query parameter.
func (p Platform) OSName() string {
	switch p {
	case PlatformAndroidWebView:
		return "android_webview"
	default:
		return "android"
	}
}

func (p Platform) String() string { return p.OSName() }

func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "android":
		return PlatformAndroid, nil
	case "android_webview", "webview":
		return PlatformAndroidWebView, nil
	default:
		return 0, fmt.Errorf("unknown platform %q", s)
	}
}

// SeedResponse is what one successful request yields. It only lives for the
// duration of a fetch; the store keeps the projected SeedState.
type SeedResponse struct {
	StatusCode       int
	Signature        string
	Country          string
	Date             string
	IsGzipCompressed bool
	Payload          []byte
}

// State projects the response into its persisted form.
func (r SeedResponse) State() SeedState {
	return SeedState{
		Signature:        r.Signature,
		Country:          r.Country,
		Date:             r.Date,
		IsGzipCompressed: r.IsGzipCompressed,
		PayloadBase64:    base64.StdEncoding.EncodeToString(r.Payload),
	}
}

// SeedState is the seed as kept in the preference store.
type SeedState struct {
	Signature        string
	Country          string
	Date             string
	IsGzipCompressed bool

	// PayloadBase64 is the raw response body, standard base64 without line
	// wrapping.
	PayloadBase64 string
}

// Empty reports whether no seed is present. A seed needs both a payload and a
// signature to be usable.
func (s SeedState) Empty() bool {
	return s.PayloadBase64 == "" || s.Signature == ""
}

func (s SeedState) Payload() ([]byte, error) {
	return base64.StdEncoding.DecodeString(s.PayloadBase64)
}

// Decompressed returns the payload, gunzipped if the server sent it
// compressed.
func (s SeedState) Decompressed() ([]byte, error) {
	b, err := s.Payload()
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if !s.IsGzipCompressed {
		return b, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("gunzip payload: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gunzip payload: %w", err)
	}
	return out, nil
}

// Result describes how a FetchSeed call ended.
type Result int

const (
	// ResultSkipped means a previous attempt already completed.
	ResultSkipped Result = iota
	ResultStored
	ResultServerError
	ResultTransportError
	ResultStoreError
)

func (r Result) String() string {
	switch r {
	case ResultSkipped:
		return "skipped"
	case ResultStored:
		return "stored"
	case ResultServerError:
		return "server-error"
	case ResultTransportError:
		return "transport-error"
	case ResultStoreError:
		return "store-error"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}
