// Package fetch acquires job inputs, either inline base64 payloads or remote URLs.
package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const filePermissions = 0o600

var (
	// ErrEmptyPayload indicates that an inline base64 payload was empty.
	ErrEmptyPayload = errors.New("payload cannot be empty")
	// ErrEmptyURL indicates that a download URL was empty.
	ErrEmptyURL = errors.New("url cannot be empty")
	// ErrDownloadTooLarge indicates that the remote file exceeded the size cap.
	ErrDownloadTooLarge = errors.New("download exceeds maximum allowed size")
)

// Client downloads remote inputs and materializes inline payloads as files.
type Client struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewClient creates a fetch client. The timeout applies to each download as a
// whole, including the body transfer. maxBytes caps the size of a single
// downloaded file.
func NewClient(timeout time.Duration, maxBytes int64) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxBytes: maxBytes,
	}
}

// SaveBase64 decodes a standard base64 payload and writes it to outputPath.
func (c *Client) SaveBase64(payload, outputPath string) error {
	if payload == "" {
		return ErrEmptyPayload
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("failed to decode base64 payload: %w", err)
	}

	err = os.WriteFile(outputPath, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write decoded payload to %s: %w", outputPath, err)
	}

	return nil
}

// Download fetches a file from a URL and streams it to outputPath. It returns
// the number of bytes written.
func (c *Client) Download(ctx context.Context, url, outputPath string) (int64, error) {
	if url == "" {
		return 0, ErrEmptyURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download %s: %w", url, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download of %s returned non-OK status: %s", url, resp.Status)
	}

	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}

	// Read one byte past the cap so an oversized body is detectable.
	written, copyErr := io.Copy(out, io.LimitReader(resp.Body, c.maxBytes+1))
	closeErr := out.Close()

	if copyErr != nil {
		return 0, fmt.Errorf("failed to write download to %s: %w", outputPath, copyErr)
	}

	if closeErr != nil {
		return 0, fmt.Errorf("failed to close output file %s: %w", outputPath, closeErr)
	}

	if written > c.maxBytes {
		removeErr := os.Remove(outputPath)
		if removeErr != nil {
			return 0, fmt.Errorf("%w: %s (cleanup failed: %v)", ErrDownloadTooLarge, url, removeErr)
		}

		return 0, fmt.Errorf("%w: %s", ErrDownloadTooLarge, url)
	}

	return written, nil
}
