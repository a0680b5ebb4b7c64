package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// maxResponseBody caps how much of an acknowledgement body is read.
const maxResponseBody = 64 * 1024

type apiClient struct {
	httpClient *retryablehttp.Client
	config     Config
	logger     log.Logger
}

func newAPIClient(config Config, logger log.Logger) (apiClient, error) {
	if err := config.Validate(); err != nil {
		return apiClient{}, fmt.Errorf("invalid transport config: %w", err)
	}

	client := retryhttp.NewClient(logger)
	client.RetryMax = config.RetryMax
	// Hand non-2xx responses back instead of a generic "giving up" error, so they can be classified.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.HTTPClient = config.HTTPClient
	if client.HTTPClient == nil {
		client.HTTPClient = DefaultHTTPClient()
	}

	return apiClient{
		httpClient: client,
		config:     config,
		logger:     logger,
	}, nil
}

// post sends one partition request and turns the answer into an acknowledgement.
func (c apiClient) post(ctx context.Context, index int, url, contentType string, body []byte, headers map[string]string) (Acknowledgement, error) {
	reqCtx := ctx
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return Acknowledgement{}, fmt.Errorf("create request: %w", err)
	}
	req = req.WithContext(reqCtx)
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.Token))
	}

	dump, err := httputil.DumpRequest(req.Request, false)
	if err != nil {
		c.logger.Warnf("error while dumping request: %s", err)
	}
	c.logger.Debugf("Partition %d request dump: %s", index, string(dump))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close() //nolint:errcheck
		}
		return Acknowledgement{}, requestError(ctx, reqCtx, index, err)
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Warnf("close response body: %s", err)
		}
	}(resp.Body)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Acknowledgement{}, requestError(ctx, reqCtx, index, fmt.Errorf("read response: %w", err))
	}
	message := strings.TrimSpace(string(respBody))
	c.logger.Debugf("Partition %d response: HTTP %d %s", index, resp.StatusCode, message)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return Acknowledgement{}, &Error{
			Kind:           KindRejected,
			PartitionIndex: index,
			StatusCode:     resp.StatusCode,
			Err:            errors.New(message),
		}
	}

	if err := checkResultCode(respBody); err != nil {
		return Acknowledgement{}, &Error{
			Kind:           KindRejected,
			PartitionIndex: index,
			StatusCode:     resp.StatusCode,
			Err:            err,
		}
	}

	return Acknowledgement{
		PartitionIndex: index,
		StatusCode:     resp.StatusCode,
		Message:        message,
	}, nil
}

// requestError classifies a request that got no usable answer.
// A done caller context is reported as its own error so it can be told apart from a transport timeout.
func requestError(ctx, reqCtx context.Context, index int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("partition %d: %w", index, ctxErr)
	}

	kind := KindConnectionFailed
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		kind = KindTimeout
	}

	return &Error{
		Kind:           kind,
		PartitionIndex: index,
		Err:            err,
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type resultStatus struct {
	ErrCode json.RawMessage `json:"err_code"`
	ErrMsg  string          `json:"err_msg"`
}

// checkResultCode inspects a JSON acknowledgement body. The receiver answers 200 with an
// err_code field when it refused the partition; any other body is accepted as is.
func checkResultCode(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}

	var status resultStatus
	if err := json.Unmarshal(trimmed, &status); err != nil {
		return nil
	}

	code := strings.Trim(string(status.ErrCode), `"`)
	switch code {
	case "", "null", "0", "Success", "SUCCESS":
		return nil
	}

	if status.ErrMsg != "" {
		return fmt.Errorf("err_code %s: %s", code, status.ErrMsg)
	}
	return fmt.Errorf("err_code %s", code)
}
