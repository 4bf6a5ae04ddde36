// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// DefaultRequestTimeout bounds a single storage request.
const DefaultRequestTimeout = 30 * time.Second

// maxResponseSize bounds the wallet response body that is read.
const maxResponseSize = 10 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// walletResponse is the JSON body returned for a wallet.
type walletResponse struct {
	GUID    string `json:"guid"`
	Payload string `json:"payload"`
}

// HTTPClient is a BlobFetcher and BlobSaver talking to the wallet storage
// service.
type HTTPClient struct {
	// BaseURL is the root of the service, without a trailing slash.
	BaseURL string

	// Client performs the requests.  http.DefaultClient is used when nil.
	Client *http.Client

	// Timeout bounds each request.  DefaultRequestTimeout is used when
	// zero.
	Timeout time.Duration
}

// A compile-time assertion to ensure HTTPClient meets the BlobFetcher and
// BlobSaver interfaces.
var (
	_ BlobFetcher = (*HTTPClient)(nil)
	_ BlobSaver   = (*HTTPClient)(nil)
)

// do performs req with the configured timeout and maps transport failures
// and status codes to the storage errors.  On success the body is returned.
func (c *HTTPClient) do(ctx context.Context, req *http.Request) ([]byte,
	error) {

	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, mapTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, mapTransportError(ctx, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound

	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:

		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, resp.Status)

	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, resp.Status)

	default:
		return nil, fmt.Errorf("unexpected response: %s", resp.Status)
	}
}

// mapTransportError classifies a failed request.  Cancellation by the
// caller is returned as is.
func mapTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) {

		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// FetchEncryptedBlob requests
// GET {base}/wallet/{guid}?sharedKey=..&format=json and returns the payload
// of the response.
func (c *HTTPClient) FetchEncryptedBlob(ctx context.Context,
	guid string) ([]byte, error) {

	sharedKey, _ := SharedKeyFromContext(ctx)

	query := url.Values{}
	query.Set("sharedKey", sharedKey)
	query.Set("format", "json")
	u := fmt.Sprintf("%s/wallet/%s?%s", c.BaseURL,
		url.PathEscape(guid), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp walletResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unable to parse wallet response: %w",
			err)
	}
	if resp.Payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrNotFound)
	}

	log.Tracef("Fetched %d byte payload of wallet %s", len(resp.Payload),
		guid)

	return []byte(resp.Payload), nil
}

// SaveEncryptedBlob posts the blob as an update of the wallet.
func (c *HTTPClient) SaveEncryptedBlob(ctx context.Context, guid string,
	blob []byte, checksum string) error {

	sharedKey, _ := SharedKeyFromContext(ctx)

	form := url.Values{}
	form.Set("method", "update")
	form.Set("guid", guid)
	form.Set("sharedKey", sharedKey)
	form.Set("payload", string(blob))
	form.Set("length", strconv.Itoa(len(blob)))
	form.Set("checksum", checksum)
	form.Set("format", "plain")

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.BaseURL+"/wallet",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if _, err := c.do(ctx, req); err != nil {
		return err
	}

	log.Debugf("Saved %d byte payload of wallet %s", len(blob), guid)

	return nil
}
