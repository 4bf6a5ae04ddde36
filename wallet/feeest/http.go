// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feeest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// DefaultRequestTimeout bounds a single fee request.
const DefaultRequestTimeout = 10 * time.Second

// maxResponseSize bounds the fee response body that is read.
const maxResponseSize = 1 << 16

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPSource fetches rates from a fee service returning
// {"regular":N,"priority":N,"limits":{"min":N,"max":N}}.
type HTTPSource struct {
	// URL is the fee endpoint of an asset.
	URL string

	// Client performs the requests.  http.DefaultClient is used when nil.
	Client *http.Client

	// Timeout bounds each request.  DefaultRequestTimeout is used when
	// zero.
	Timeout time.Duration
}

// A compile-time assertion to ensure HTTPSource meets the Estimator and
// RateSource interfaces.
var (
	_ Estimator  = (*HTTPSource)(nil)
	_ RateSource = (*HTTPSource)(nil)
)

// FetchRates requests the current rates.
func (s *HTTPSource) FetchRates(ctx context.Context) (*Rates, error) {
	timeout := s.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fee request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fee request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("unable to read fee response: %w", err)
	}

	var rates Rates
	if err := json.Unmarshal(body, &rates); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRates, err)
	}
	if err := rates.Validate(); err != nil {
		return nil, err
	}

	log.Tracef("Fetched fee rates from %s: regular=%d priority=%d",
		s.URL, rates.Regular, rates.Priority)

	return &rates, nil
}

// RateFor fetches the rates and returns the one for the speed.
func (s *HTTPSource) RateFor(ctx context.Context, speed Speed) (uint64,
	error) {

	rates, err := s.FetchRates(ctx)
	if err != nil {
		return 0, err
	}
	return rates.For(speed)
}
