package httpx

import (
	"crypto/tls"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
)

// Client is a retrying HTTP client shared by the reranker and other
// outbound collaborator calls. It enforces a host allowlist and opens a
// circuit after repeated consecutive failures.
type Client struct {
	hc        *http.Client
	opt       Options
	fail      int32 // consecutive failures
	openUntil int64 // unix nanos for circuit open deadline
}

type Options struct {
	Timeout            time.Duration
	Retry              int
	BackoffMin         time.Duration
	BackoffMax         time.Duration
	HostAllowlist      []string
	MaxConsecutiveFail int
	CircuitOpen        time.Duration
}

var (
	ErrCircuitOpen    = errors.New("circuit open")
	ErrHostNotAllowed = errors.New("host not allowed")
)

// NewFromConfig builds a client with sane fallbacks for any unset field.
func NewFromConfig(cfg *config.HTTPClientConfig) *Client {
	opt := Options{
		Timeout:            1200 * time.Millisecond,
		Retry:              2,
		BackoffMin:         250 * time.Millisecond,
		BackoffMax:         2 * time.Second,
		MaxConsecutiveFail: 5,
		CircuitOpen:        5 * time.Second,
	}
	if cfg != nil {
		if cfg.TimeoutMs > 0 {
			opt.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
		}
		if cfg.Retry > 0 {
			opt.Retry = cfg.Retry
		}
		if cfg.BackoffMinMs > 0 {
			opt.BackoffMin = time.Duration(cfg.BackoffMinMs) * time.Millisecond
		}
		if cfg.BackoffMaxMs > 0 {
			opt.BackoffMax = time.Duration(cfg.BackoffMaxMs) * time.Millisecond
		}
		if cfg.MaxConsecutiveFailures > 0 {
			opt.MaxConsecutiveFail = cfg.MaxConsecutiveFailures
		}
		if cfg.CircuitOpenSeconds > 0 {
			opt.CircuitOpen = time.Duration(cfg.CircuitOpenSeconds) * time.Second
		}
		opt.HostAllowlist = cfg.HostAllowlist
	}

	transport := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: opt.Timeout}).DialContext,
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:    100,
		IdleConnTimeout: 30 * time.Second,
	}
	return &Client{
		hc:  &http.Client{Timeout: opt.Timeout, Transport: transport},
		opt: opt,
	}
}

func (c *Client) allowed(u string) bool {
	if len(c.opt.HostAllowlist) == 0 {
		return true
	}
	pu, err := url.Parse(u)
	if err != nil {
		return false
	}
	host := pu.Hostname()
	for _, h := range c.opt.HostAllowlist {
		if matchHost(h, host) {
			return true
		}
	}
	return false
}

func matchHost(pattern, host string) bool {
	if pattern == "*" {
		return true
	}
	if strings.EqualFold(pattern, host) {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suf := strings.TrimPrefix(pattern, "*.")
		return strings.HasSuffix(host, "."+suf) || host == suf
	}
	return false
}

// Do performs the request with retries and jittered backoff. 5xx responses
// count as failures; anything below 500 is returned to the caller as-is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if !c.allowed(req.URL.String()) {
		logger.Warnf("httpx: blocked outbound host: %s", req.URL.String())
		return nil, ErrHostNotAllowed
	}
	now := time.Now().UnixNano()
	if atomic.LoadInt64(&c.openUntil) > now {
		return nil, ErrCircuitOpen
	}
	var resp *http.Response
	var err error
	for i := 0; i <= c.opt.Retry; i++ {
		resp, err = c.hc.Do(req)
		if err == nil && resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 500 {
			atomic.StoreInt32(&c.fail, 0)
			return resp, nil
		}
		// close body on failure to reuse the connection
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		logger.Warnf("httpx: request failed (try %d/%d) to %s: %v", i+1, c.opt.Retry+1, req.URL.String(), err)
		if i < c.opt.Retry {
			time.Sleep(backoffJitter(c.opt.BackoffMin, c.opt.BackoffMax))
		}
	}
	if atomic.AddInt32(&c.fail, 1) >= int32(c.opt.MaxConsecutiveFail) {
		atomic.StoreInt64(&c.openUntil, time.Now().Add(c.opt.CircuitOpen).UnixNano())
		atomic.StoreInt32(&c.fail, 0)
		logger.Warnf("httpx: circuit opened for %v", c.opt.CircuitOpen)
	}
	return resp, err
}

func backoffJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
