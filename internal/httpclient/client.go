// Package httpclient builds the shared outbound HTTP client.
//
// One pooled client is constructed at startup and reused by every worker
// invocation and task, so vendor API calls share connection pools.
package httpclient

import (
	"crypto/tls"
	"net/http"
	"time"
)

// Options controls client construction.
type Options struct {
	Timeout time.Duration
	// InsecureSkipVerify disables TLS verification for on-prem vendor
	// appliances that ship self-signed certificates.
	InsecureSkipVerify  bool
	MaxIdleConns        int
	MaxIdleConnsPerHost int
}

// New returns a pooled *http.Client with the given options.
func New(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 100
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 10
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          opts.MaxIdleConns,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}
}

// Default returns a client with default options.
func Default() *http.Client {
	return New(Options{})
}
