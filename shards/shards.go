// Package shards downloads the per-cell building shards into a scratch bucket.
package shards

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

const DefaultSourceURI string = "https://storage.googleapis.com/open-buildings-data/v3/polygons_s2_level_4_gzip"

const DefaultTimeout time.Duration = 300 * time.Second

const DefaultRetries int = 3

// Response bodies are copied to the scratch bucket in chunks of this many bytes.
const ChunkSize int = 8192

var ErrShardFetchFailed = errors.New("Shard fetch failed")

type FetchStatus int

const (
	Downloaded FetchStatus = iota
	AlreadyPresent
	Absent
	Failed
)

func (s FetchStatus) String() string {

	switch s {
	case Downloaded:
		return "downloaded"
	case AlreadyPresent:
		return "present"
	case Absent:
		return "absent"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type FetchResult struct {
	Cell   string
	Key    string
	URL    string
	Status FetchStatus
	Bytes  int64
	// Err is only set when Status is Failed and always wraps ErrShardFetchFailed.
	Err error
}

// IsPresent reports whether the shard is available in the scratch bucket.
func (r *FetchResult) IsPresent() bool {
	return r.Status == Downloaded || r.Status == AlreadyPresent
}

// ShardName returns the name of the shard for cell, both remotely and in the scratch bucket.
func ShardName(cell string) string {
	return fmt.Sprintf("%s_buildings.csv.gz", cell)
}

type FetcherOptions struct {
	SourceURI string
	Bucket    *blob.Bucket
	// Client is optional; a retrying client with Timeout and Retries is created when nil.
	Client  *retryablehttp.Client
	Timeout time.Duration
	Retries int
	// Refresh forces a download even if the shard is already in Bucket.
	Refresh bool
}

type Fetcher struct {
	source_uri string
	bucket     *blob.Bucket
	client     *retryablehttp.Client
	refresh    bool
}

func NewFetcher(opts *FetcherOptions) (*Fetcher, error) {

	if opts.Bucket == nil {
		return nil, fmt.Errorf("Missing scratch bucket")
	}

	source_uri := opts.SourceURI

	if source_uri == "" {
		source_uri = DefaultSourceURI
	}

	client := opts.Client

	if client == nil {

		timeout := opts.Timeout

		if timeout <= 0 {
			timeout = DefaultTimeout
		}

		client = retryablehttp.NewClient()
		client.RetryMax = opts.Retries
		client.HTTPClient.Timeout = timeout
		client.Logger = slog.Default()
	}

	f := &Fetcher{
		source_uri: strings.TrimRight(source_uri, "/"),
		bucket:     opts.Bucket,
		client:     client,
		refresh:    opts.Refresh,
	}

	return f, nil
}

// Bucket returns the scratch bucket shards are written to.
func (f *Fetcher) Bucket() *blob.Bucket {
	return f.bucket
}

func (f *Fetcher) URL(cell string) string {
	return fmt.Sprintf("%s/%s", f.source_uri, ShardName(cell))
}

// Fetch downloads the shard for cell unless it is already present (and non-empty) in the scratch bucket.
// A 404 is reported as Absent. Every other failure is reported as Failed; Fetch never returns a nil result.
func (f *Fetcher) Fetch(ctx context.Context, cell string) *FetchResult {

	key := ShardName(cell)

	r := &FetchResult{
		Cell: cell,
		Key:  key,
		URL:  f.URL(cell),
	}

	if !f.refresh {

		attrs, err := f.bucket.Attributes(ctx, key)

		switch {
		case err == nil && attrs.Size > 0:
			r.Status = AlreadyPresent
			r.Bytes = attrs.Size
			return r
		case err != nil && gcerrors.Code(err) != gcerrors.NotFound:
			return failed(r, fmt.Errorf("Failed to stat %s, %w", key, err))
		}
	}

	req, err := retryablehttp.NewRequest(http.MethodGet, r.URL, nil)

	if err != nil {
		return failed(r, fmt.Errorf("Failed to create request, %w", err))
	}

	req = req.WithContext(ctx)

	rsp, err := f.client.Do(req)

	if err != nil {
		return failed(r, fmt.Errorf("Failed to retrieve %s, %w", r.URL, err))
	}

	defer rsp.Body.Close()

	if rsp.StatusCode == http.StatusNotFound {
		r.Status = Absent
		return r
	}

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		return failed(r, fmt.Errorf("Failed to retrieve %s, %s", r.URL, rsp.Status))
	}

	n, err := f.write(ctx, key, rsp.Body)

	if err != nil {
		return failed(r, err)
	}

	r.Status = Downloaded
	r.Bytes = n
	return r
}

// write copies body to key in fixed size chunks. Partial writes are discarded, never committed.
func (f *Fetcher) write(ctx context.Context, key string, body io.Reader) (int64, error) {

	wr_ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wr, err := f.bucket.NewWriter(wr_ctx, key, nil)

	if err != nil {
		return 0, fmt.Errorf("Failed to create writer for %s, %w", key, err)
	}

	buf := make([]byte, ChunkSize)
	var total int64

	for {

		n, read_err := body.Read(buf)

		if n > 0 {

			_, err := wr.Write(buf[:n])

			if err != nil {
				cancel()
				wr.Close()
				return 0, fmt.Errorf("Failed to write %s, %w", key, err)
			}

			total += int64(n)
		}

		if read_err == io.EOF {
			break
		}

		if read_err != nil {
			cancel()
			wr.Close()
			return 0, fmt.Errorf("Failed to read body for %s, %w", key, read_err)
		}
	}

	err = wr.Close()

	if err != nil {
		return 0, fmt.Errorf("Failed to close writer for %s, %w", key, err)
	}

	return total, nil
}

func failed(r *FetchResult, err error) *FetchResult {
	r.Status = Failed
	r.Err = fmt.Errorf("%w, %w", ErrShardFetchFailed, err)
	return r
}

// Cleanup removes keys from the scratch bucket. Keys that no longer exist are ignored.
func Cleanup(ctx context.Context, bucket *blob.Bucket, keys ...string) error {

	errs := make([]error, 0)

	for _, key := range keys {

		err := bucket.Delete(ctx, key)

		if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			errs = append(errs, fmt.Errorf("Failed to delete %s, %w", key, err))
		}
	}

	return errors.Join(errs...)
}
