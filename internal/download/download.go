// Package download fetches model files over HTTP with retries, a terminal
// progress bar and SHA-256 verification. Files land atomically, so a failed
// or interrupted fetch never leaves a truncated model behind.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fmueller/longscribe/internal/atomicfile"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const (
	defaultRetries  = 3
	retryBackoff    = 300 * time.Millisecond
	userAgent       = "longscribe/1"
	fileTimeout     = 10 * time.Minute
	checksumTimeout = 2 * time.Minute
)

var sha256Hex = regexp.MustCompile(`(?i)\b([a-f0-9]{64})\b`)

// StatusError is a non-200 response. Client errors other than 429 are final.
type StatusError struct {
	Code int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// ChecksumError reports a digest mismatch after a complete transfer.
type ChecksumError struct {
	Expected string
	Actual   string
}

func (e ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func retryable(err error) bool {
	var se StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type Options struct {
	URL            string
	Destination    string
	ExpectedSHA256 string
	ChecksumURL    string
	Retries        int
	NoProgress     bool
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

func (o Options) withDefaults() (Options, error) {
	if o.URL == "" {
		return o, errors.New("download URL is required")
	}
	if o.Destination == "" {
		return o, errors.New("destination path is required")
	}
	if o.Retries <= 0 {
		o.Retries = defaultRetries
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: fileTimeout}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o, nil
}

// DownloadFile fetches opts.URL into opts.Destination. The expected digest is
// taken from ExpectedSHA256, or looked up in the list at ChecksumURL.
func DownloadFile(ctx context.Context, opts Options) error {
	opts, err := opts.withDefaults()
	if err != nil {
		return err
	}

	expected := normalizeDigest(opts.ExpectedSHA256)
	if expected == "" && opts.ChecksumURL != "" {
		expected, err = ResolveExpectedChecksum(ctx, opts.ChecksumURL, filepath.Base(opts.Destination), opts.HTTPClient)
		if err != nil {
			return fmt.Errorf("fetch checksum: %w", err)
		}
	}

	for attempt := 1; ; attempt++ {
		err = fetch(ctx, opts, expected)
		if err == nil || !retryable(err) || attempt == opts.Retries {
			return err
		}

		opts.Logger.Warn("download attempt failed; retrying",
			zap.String("url", opts.URL),
			zap.Int("attempt", attempt),
			zap.Int("max", opts.Retries),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
}

// ResolveExpectedChecksum downloads a checksum list and picks the digest for
// fileName.
func ResolveExpectedChecksum(ctx context.Context, checksumURL, fileName string, client *http.Client) (string, error) {
	if strings.TrimSpace(checksumURL) == "" {
		return "", errors.New("checksum URL is required")
	}
	if client == nil {
		client = &http.Client{Timeout: checksumTimeout}
	}

	resp, err := get(ctx, client, checksumURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read checksum list: %w", err)
	}
	return ParseChecksum(content, fileName)
}

// ParseChecksum finds the digest on the line naming fileName, falling back to
// the first digest in content.
func ParseChecksum(content []byte, fileName string) (string, error) {
	var first string
	for _, line := range strings.Split(string(content), "\n") {
		match := sha256Hex.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		if fileName != "" && strings.Contains(line, fileName) {
			return strings.ToLower(match[1]), nil
		}
		if first == "" {
			first = strings.ToLower(match[1])
		}
	}
	if first == "" {
		return "", errors.New("sha256 checksum not found")
	}
	return first, nil
}

// VerifyFileChecksum hashes path and compares it with expectedSHA256. An
// empty expectation always passes.
func VerifyFileChecksum(path, expectedSHA256 string) error {
	expected := normalizeDigest(expectedSHA256)
	if expected == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash file: %w", err)
	}
	if actual := hex.EncodeToString(h.Sum(nil)); actual != expected {
		return ChecksumError{Expected: expected, Actual: actual}
	}
	return nil
}

func normalizeDigest(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// get issues a GET and hands back the response only for a 200.
func get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, StatusError{Code: resp.StatusCode}
	}
	return resp, nil
}

func fetch(ctx context.Context, opts Options, expected string) error {
	resp, err := get(ctx, opts.HTTPClient, opts.URL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := atomicfile.Create(opts.Destination, 0o644)
	if err != nil {
		return err
	}
	defer out.Abort()

	hash := sha256.New()
	sinks := []io.Writer{out, hash}
	bar := newBar(opts.NoProgress, resp.ContentLength, filepath.Base(opts.Destination))
	if bar != nil {
		sinks = append(sinks, bar)
	}
	if _, err := io.Copy(io.MultiWriter(sinks...), resp.Body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("download body: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if actual := hex.EncodeToString(hash.Sum(nil)); expected != "" && actual != expected {
		return ChecksumError{Expected: expected, Actual: actual}
	}
	return out.Commit()
}

// newBar returns a byte progress bar, or nil unless stderr is a terminal and
// the size is known.
func newBar(noProgress bool, size int64, name string) *progressbar.ProgressBar {
	if noProgress || size <= 0 || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return progressbar.NewOptions64(
		size,
		progressbar.OptionSetDescription("downloading "+name),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
}
