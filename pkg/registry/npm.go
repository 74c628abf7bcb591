package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/project-copacetic/autofix/pkg/types"
	log "github.com/sirupsen/logrus"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultRetryWaitTime = 500 * time.Millisecond
	defaultRetryMaxWait  = 5 * time.Second
)

// Config holds the connection settings shared by the registry clients.
type Config struct {
	URL        string
	Timeout    time.Duration
	RetryCount int
}

// NPMClient talks to the registry HTTP API directly.
type NPMClient struct {
	http *resty.Client
}

// NewNPMClient returns a client for the registry at cfg.URL.
func NewNPMClient(cfg Config) *NPMClient {
	base := cfg.URL
	if base == "" {
		base = types.DefaultRegistryURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New()
	client.
		SetBaseURL(strings.TrimSuffix(base, "/")).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetRetryMaxWaitTime(defaultRetryMaxWait).
		SetTimeout(timeout)

	return &NPMClient{http: client}
}

// Info implements Client.
func (c *NPMClient) Info(ctx context.Context, name, version string) (*PackageInfo, error) {
	path := "/" + EscapeName(name)
	if version != "" {
		path += "/" + url.PathEscape(version)
	}

	log.Debugf("Querying registry for %s", Spec(name, version))
	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrRegistryQuery, errors.Wrapf(err, "GET %s", path))
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: GET %s returned %s", types.ErrRegistryQuery, path, resp.Status())
	}

	info, err := ParseInfo(resp.Body())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse registry response for %s", Spec(name, version))
	}
	return info, nil
}
