package vfs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/choraleia/xide/pkg/models"
	"github.com/google/uuid"
)

const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultReconnectDelay = 5 * time.Second
	maxReconnectDelay     = 30 * time.Second
	requestIDHeader       = "X-Request-ID"
	maxResponseBody       = 64 << 20
)

// RemoteClientConfig configures the companion file service client.
type RemoteClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	ReconnectDelay time.Duration
	HTTPClient     *http.Client
}

// RemoteClient speaks the companion file service's JSON protocol. Every
// method is one round trip; transport failures come back as
// BackendUnreachable and nothing is retried here.
type RemoteClient struct {
	baseURL        string
	http           *http.Client
	stream         *http.Client
	reconnectDelay time.Duration
	logger         *slog.Logger
}

func NewRemoteClient(cfg RemoteClientConfig, logger *slog.Logger) *RemoteClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &RemoteClient{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		http:           httpClient,
		stream:         &http.Client{Transport: httpClient.Transport},
		reconnectDelay: delay,
		logger:         logger,
	}
}

func (c *RemoteClient) BaseURL() string { return c.baseURL }

// statusCarrier is implemented by every response type embedding models.Status.
type statusCarrier interface {
	GetStatus() models.Status
}

func (c *RemoteClient) do(ctx context.Context, method, endpoint string, query url.Values, body any, out any) error {
	status, err := c.roundTrip(ctx, method, endpoint, query, body, out)
	if err != nil {
		return err
	}
	if sc, ok := out.(statusCarrier); ok {
		if st := sc.GetStatus(); !st.Success {
			msg := st.Error
			if msg == "" {
				msg = fmt.Sprintf("file service request failed (%d)", status)
			}
			return &Error{Kind: KindFromCode(st.Code), Message: msg}
		}
	}
	return nil
}

// roundTrip performs one request and decodes the JSON body into out. It
// returns the HTTP status code.
func (c *RemoteClient) roundTrip(ctx context.Context, method, endpoint string, query url.Values, body any, out any) (int, error) {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, wrapError(KindInvalidArgument, err, "encode request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, wrapError(KindInvalidArgument, err, "build request")
	}
	reqID := uuid.NewString()
	req.Header.Set(requestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("File service unreachable", "method", method, "endpoint", endpoint, "request_id", reqID, "error", err)
		return 0, wrapError(KindBackendUnreachable, err, "file service unreachable").withSolutions(
			"Start the companion file service (xide serve)",
			"Check remote.base_url in the configuration",
		)
	}
	defer resp.Body.Close()
	c.logger.Debug("File service call", "method", method, "endpoint", endpoint, "status", resp.StatusCode,
		"request_id", reqID, "duration", time.Since(start))

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusNotFound {
			return resp.StatusCode, wrapError(KindBackendUnreachable, err,
				fmt.Sprintf("file service returned %d", resp.StatusCode))
		}
		return resp.StatusCode, wrapError(KindInternal, err, "decode file service response")
	}
	return resp.StatusCode, nil
}

// DirectoryExists reports whether hostPath is an existing directory.
func (c *RemoteClient) DirectoryExists(ctx context.Context, hostPath string) (bool, error) {
	var out models.DirectoryExistsResponse
	err := c.do(ctx, http.MethodGet, "/api/directory/exists", url.Values{"path": {hostPath}}, nil, &out)
	return out.Exists, err
}

func (c *RemoteClient) ReadDirectory(ctx context.Context, hostPath string) ([]models.FileItem, error) {
	var out models.DirectoryReadResponse
	if err := c.do(ctx, http.MethodPost, "/api/directory/read", nil, models.PathRequest{Path: hostPath}, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *RemoteClient) ReadFile(ctx context.Context, hostPath string) (string, error) {
	var out models.FileReadResponse
	if err := c.do(ctx, http.MethodPost, "/api/file/read", nil, models.PathRequest{Path: hostPath}, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (c *RemoteClient) WriteFile(ctx context.Context, hostPath, content string) error {
	var out models.Status
	return c.do(ctx, http.MethodPost, "/api/file/write", nil, models.WriteFileRequest{Path: hostPath, Content: content}, &out)
}

func (c *RemoteClient) CreateFile(ctx context.Context, hostPath, content string) error {
	var out models.Status
	return c.do(ctx, http.MethodPost, "/api/file/create", nil, models.WriteFileRequest{Path: hostPath, Content: content}, &out)
}

func (c *RemoteClient) CreateFolder(ctx context.Context, hostPath string) error {
	var out models.Status
	return c.do(ctx, http.MethodPost, "/api/folder/create", nil, models.PathRequest{Path: hostPath}, &out)
}

func (c *RemoteClient) Delete(ctx context.Context, hostPath string) error {
	var out models.Status
	return c.do(ctx, http.MethodPost, "/api/delete", nil, models.PathRequest{Path: hostPath}, &out)
}

func (c *RemoteClient) Rename(ctx context.Context, oldPath, newPath string) error {
	var out models.Status
	return c.do(ctx, http.MethodPost, "/api/rename", nil, models.RenameRequest{OldPath: oldPath, NewPath: newPath}, &out)
}

func (c *RemoteClient) Exists(ctx context.Context, hostPath string) (bool, error) {
	var out models.ExistsResponse
	if err := c.do(ctx, http.MethodGet, "/api/item/exists", url.Values{"path": {hostPath}}, nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// Execute runs a shell command on the service host.
func (c *RemoteClient) Execute(ctx context.Context, command, cwd string) (models.CommandResponse, error) {
	var out models.CommandResponse
	// A failed command is a normal response; its status travels in out.
	_, err := c.roundTrip(ctx, http.MethodPost, "/api/command/execute", nil, models.CommandRequest{Command: command, Cwd: cwd}, &out)
	return out, err
}

// Subscribe streams /api/watch events for hostPath. The first connection is
// made before it returns, so a refusal (missing directory, unsupported
// storage) comes back as an error. Afterwards the stream reconnects with a
// doubling delay capped at 30s and every interruption is reported on the
// error channel. A reconnect the service refuses ends the stream. Both
// channels close when the stream ends or ctx is done.
func (c *RemoteClient) Subscribe(ctx context.Context, hostPath string) (<-chan models.WatchEvent, <-chan error, error) {
	resp, err := c.openStream(ctx, hostPath)
	if err != nil {
		return nil, nil, err
	}
	events := make(chan models.WatchEvent, 64)
	errs := make(chan error, 4)
	go c.subscribeLoop(ctx, hostPath, resp, events, errs)
	return events, errs, nil
}

func (c *RemoteClient) subscribeLoop(ctx context.Context, hostPath string, resp *http.Response, events chan<- models.WatchEvent, errs chan<- error) {
	defer close(events)
	defer close(errs)
	report := func(err error) {
		select {
		case errs <- err:
		default:
		}
	}

	delay := c.reconnectDelay
	for {
		err := c.readStream(ctx, resp, events)
		for {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("Watch stream interrupted", "path", hostPath, "error", err, "retry_in", delay)
			report(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxReconnectDelay)

			resp, err = c.openStream(ctx, hostPath)
			if err == nil {
				break
			}
			if kind := KindOf(err); kind != KindBackendUnreachable && kind != KindInternal {
				if ctx.Err() == nil {
					report(err)
				}
				return
			}
		}
		delay = c.reconnectDelay
	}
}

// openStream connects to /api/watch. A non-200 answer is decoded as a
// service status so its code keeps its kind.
func (c *RemoteClient) openStream(ctx context.Context, hostPath string) (*http.Response, error) {
	u := c.baseURL + "/api/watch?" + url.Values{"path": {hostPath}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, wrapError(KindInvalidArgument, err, "create watch request")
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set(requestIDHeader, reqID)

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, wrapError(KindBackendUnreachable, err, "connect watch stream")
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	var st models.Status
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&st); err != nil || st.Code == "" {
		return nil, newError(KindBackendUnreachable, "watch stream returned %d", resp.StatusCode)
	}
	msg := st.Error
	if msg == "" {
		msg = fmt.Sprintf("watch stream returned %d", resp.StatusCode)
	}
	c.logger.Debug("Watch stream refused", "path", hostPath, "code", st.Code, "request_id", reqID)
	return nil, &Error{Kind: KindFromCode(st.Code), Message: msg}
}

// readStream forwards the SSE data frames of resp until the stream ends.
func (c *RemoteClient) readStream(ctx context.Context, resp *http.Response, events chan<- models.WatchEvent) error {
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if data.Len() > 0 {
				var ev models.WatchEvent
				if err := json.Unmarshal([]byte(data.String()), &ev); err == nil && ev.Event != "" {
					select {
					case events <- ev:
					case <-ctx.Done():
						return nil
					}
				}
				data.Reset()
			}
			continue
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(v, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return wrapError(KindBackendUnreachable, err, "read watch stream")
	}
	return newError(KindBackendUnreachable, "watch stream closed")
}
