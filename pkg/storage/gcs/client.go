// Package gcs stores prescription scans in a Cloud Storage bucket through the
// JSON API. Objects are addressed by gs://bucket/object references.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/angelmondragon/medidrop-backend/pkg/config"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

const (
	readWriteScope = "https://www.googleapis.com/auth/devstorage.read_write"
	defaultBaseURL = "https://storage.googleapis.com"
	requestTimeout = 15 * time.Second
	pingTimeout    = 5 * time.Second
	errorBodyLimit = 2048
)

var ErrNotInitialized = errors.New("gcs client not initialized")

// Client talks to a single default bucket.
type Client struct {
	bucket  string
	baseURL string
	http    *http.Client
}

// NewClient resolves credentials from the inline JSON, the credentials file
// or the ambient default chain, in that order, then checks bucket access.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	creds, err := credentials(ctx, gcp)
	if err != nil {
		return nil, err
	}

	client := newClient(cfg.BucketName, defaultBaseURL, creds.TokenSource, nil)
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.BucketName), "gcs.connected")
	}
	return client, nil
}

func credentials(ctx context.Context, gcp config.GCPConfig) (*google.Credentials, error) {
	switch {
	case gcp.CredentialsJSON != "":
		return serviceAccount(ctx, []byte(gcp.CredentialsJSON))
	case gcp.ApplicationCredentials != "":
		raw, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		return serviceAccount(ctx, raw)
	default:
		creds, err := google.FindDefaultCredentials(ctx, readWriteScope)
		if err != nil {
			return nil, fmt.Errorf("finding default gcs credentials: %w", err)
		}
		return creds, nil
	}
}

func serviceAccount(ctx context.Context, raw []byte) (*google.Credentials, error) {
	creds, err := google.CredentialsFromJSONWithType(ctx, raw, google.ServiceAccount, readWriteScope)
	if err != nil {
		return nil, fmt.Errorf("parsing service account credentials: %w", err)
	}
	return creds, nil
}

// newClient wraps base in a token-injecting transport. A nil base uses the
// default transport.
func newClient(bucket, baseURL string, source oauth2.TokenSource, base http.RoundTripper) *Client {
	return &Client{
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, source),
				Base:   base,
			},
		},
	}
}

func (c *Client) Close() error {
	return nil
}

// Ping lists at most one object, which needs storage.objects.list on the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.http == nil {
		return ErrNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/storage/v1/b/%s/o?maxResults=1&fields=kind", c.baseURL, url.PathEscape(c.bucket))
	resp, err := c.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return statusError("gcs bucket check", resp)
	}
	return nil
}

// Upload writes body to object in the default bucket with a simple media
// upload and returns its gs:// reference.
func (c *Client) Upload(ctx context.Context, object, contentType string, body io.Reader) (string, error) {
	if c == nil || c.http == nil {
		return "", ErrNotInitialized
	}
	object = strings.TrimLeft(strings.TrimSpace(object), "/")
	if object == "" {
		return "", errors.New("object name is required")
	}
	if body == nil {
		return "", errors.New("object body is required")
	}

	endpoint := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?uploadType=media&name=%s",
		c.baseURL, url.PathEscape(c.bucket), url.QueryEscape(object))
	resp, err := c.do(ctx, http.MethodPost, endpoint, contentType, body)
	if err != nil {
		return "", fmt.Errorf("gcs upload: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return "", statusError("gcs upload", resp)
	}
	return Ref(c.bucket, object), nil
}

// Delete removes the object behind a gs:// reference.
func (c *Client) Delete(ctx context.Context, ref string) error {
	bucket, object, ok := ObjectFromRef(ref)
	if !ok {
		return fmt.Errorf("not a gcs reference: %q", ref)
	}
	return c.DeleteObject(ctx, bucket, object)
}

// DeleteObject removes an object. A missing object is not an error and an
// empty bucket means the default one.
func (c *Client) DeleteObject(ctx context.Context, bucket, object string) error {
	if c == nil || c.http == nil {
		return ErrNotInitialized
	}
	if bucket == "" {
		bucket = c.bucket
	}
	if strings.TrimSpace(object) == "" {
		return errors.New("object name is required")
	}

	endpoint := fmt.Sprintf("%s/storage/v1/b/%s/o/%s", c.baseURL, url.PathEscape(bucket), url.PathEscape(object))
	resp, err := c.do(ctx, http.MethodDelete, endpoint, "", nil)
	if err != nil {
		return fmt.Errorf("gcs delete: %w", err)
	}
	defer drain(resp)
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return statusError("gcs delete", resp)
	}
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.http.Do(req)
}

func statusError(op string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if msg := strings.TrimSpace(string(detail)); msg != "" {
		return fmt.Errorf("%s failed: %s: %s", op, resp.Status, msg)
	}
	return fmt.Errorf("%s failed: %s", op, resp.Status)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))
	_ = resp.Body.Close()
}

// Ref formats a gs:// reference.
func Ref(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ObjectFromRef splits a gs://bucket/object reference.
func ObjectFromRef(ref string) (bucket, object string, ok bool) {
	rest, found := strings.CutPrefix(ref, "gs://")
	if !found {
		return "", "", false
	}
	bucket, object, found = strings.Cut(rest, "/")
	if !found || bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}
