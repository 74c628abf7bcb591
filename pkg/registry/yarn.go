package registry

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/project-copacetic/autofix/pkg/types"
	"github.com/project-copacetic/autofix/pkg/utils"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Runner executes a command in dir and returns its standard output.
type Runner func(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

// YarnClient reads metadata through `yarn info --json`, so the registry and credentials
// configured for the repository are honoured.
type YarnClient struct {
	dir        string
	retryCount int
	run        Runner
	newBackOff func() backoff.BackOff
}

// NewYarnClient returns a client running yarn in dir.
func NewYarnClient(dir string, cfg Config) *YarnClient {
	return &YarnClient{
		dir:        dir,
		retryCount: cfg.RetryCount,
		run:        runCommand,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Info implements Client.
func (c *YarnClient) Info(ctx context.Context, name, version string) (*PackageInfo, error) {
	spec := Spec(name, version)

	var out []byte
	op := func() error {
		var err error
		out, err = c.run(ctx, c.dir, "yarn", "info", spec, "--json")
		if err != nil {
			log.Debugf("yarn info %s failed: %v", spec, err)
		}
		return err
	}

	retries := c.retryCount
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(retries)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrRegistryQuery, errors.Wrapf(err, "yarn info %s", spec))
	}

	info, err := ParseInfo(inspectLine(out))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse yarn info output for %s", spec)
	}
	return info, nil
}

// inspectLine picks the "inspect" record out of yarn's line-delimited JSON output.
func inspectLine(out []byte) []byte {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if gjson.GetBytes(line, "type").String() == "inspect" {
			return append([]byte(nil), line...)
		}
	}
	return out
}

func runCommand(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	// stdout is buffered, so stderr can be drained before waiting
	utils.LogPipe(stderr, log.DebugLevel, log.Fields{"cmd": name + " " + strings.Join(args, " ")})

	if err := cmd.Wait(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}
