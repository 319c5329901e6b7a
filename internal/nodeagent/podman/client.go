// Package podman is the Node Agent's driver for the local container engine,
// addressed over a UNIX domain socket (spec §4.10, §6), grounded on
// original_source/src/agent/nodeagent/src/runtime/podman/mod.rs and
// container.rs. The Rust original dials the socket with hyper+hyperlocal;
// Go's net/http lets an http.Transport dial a UNIX socket directly via a
// custom DialContext, so no third-party UDS client library is needed here
// (DESIGN.md records this as the one stdlib-only sub-concern in the node
// agent).
package podman

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/piccolo-project/piccolo/internal/proto"
)

// DefaultSocket is the default libpod REST socket path (spec §6).
const DefaultSocket = "/var/run/podman/podman.sock"

// DefaultCallTimeout bounds every engine RPC (spec §5: "2s engine calls").
const DefaultCallTimeout = 2 * time.Second

// Client talks to the libpod v4.0.0 REST API over a local UNIX socket.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient builds a Client dialing socketPath. An empty socketPath selects
// DefaultSocket.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	dialer := &net.Dialer{}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		httpClient: &http.Client{Transport: transport},
		timeout:    timeout,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	// The Host/scheme are ignored by the UNIX-socket transport but must be
	// well-formed for net/http's URL parser.
	req, err := http.NewRequestWithContext(ctx, method, "http://podman"+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return data, fmt.Errorf("podman: %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body io.Reader) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// ImageExists checks whether image is present among local libpod images
// (spec §6: GET /v4.0.0/libpod/images/json).
func (c *Client) ImageExists(ctx context.Context, image string) (bool, error) {
	data, err := c.get(ctx, "/v4.0.0/libpod/images/json")
	if err != nil {
		return false, err
	}
	var images []struct {
		RepoTags []string `json:"RepoTags"`
	}
	if err := json.Unmarshal(data, &images); err != nil {
		return false, err
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == image {
				return true, nil
			}
		}
	}
	return false, nil
}

// PullImage pulls image from its registry (spec §6: POST
// /v4.0.0/libpod/images/pull?reference={image}).
func (c *Client) PullImage(ctx context.Context, image string) error {
	_, err := c.post(ctx, "/v4.0.0/libpod/images/pull?reference="+image, nil)
	return err
}

// CreateRequest is the libpod container-create body shape (spec §4.10).
type CreateRequest struct {
	Image      string            `json:"Image"`
	Name       string            `json:"Name"`
	Env        map[string]string `json:"Env,omitempty"`
	Cmd        []string          `json:"Cmd,omitempty"`
	HostConfig HostConfig        `json:"HostConfig"`
}

// HostConfig carries the host-facing parts of CreateRequest.
type HostConfig struct {
	NetworkMode  string              `json:"NetworkMode,omitempty"`
	PortBindings map[string][]PortBinding `json:"PortBindings,omitempty"`
	Binds        []string            `json:"Binds,omitempty"`
}

// PortBinding is one host port mapped to a container port.
type PortBinding struct {
	HostPort string `json:"HostPort"`
}

// CreateContainer calls POST /v4.0.0/libpod/containers/create and returns
// the new container's ID.
func (c *Client) CreateContainer(ctx context.Context, req CreateRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	data, err := c.post(ctx, "/v4.0.0/libpod/containers/create", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	var result struct {
		Id string `json:"Id"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", err
	}
	if result.Id == "" {
		return "", fmt.Errorf("podman: create response missing Id")
	}
	return result.Id, nil
}

// StartContainer starts a container by ID or name.
func (c *Client) StartContainer(ctx context.Context, idOrName string) error {
	_, err := c.post(ctx, fmt.Sprintf("/v4.0.0/libpod/containers/%s/start", idOrName), nil)
	return err
}

// StopContainer stops a container by ID or name.
func (c *Client) StopContainer(ctx context.Context, idOrName string) error {
	_, err := c.post(ctx, fmt.Sprintf("/v4.0.0/libpod/containers/%s/stop", idOrName), nil)
	return err
}

// RestartContainer calls the engine's restart endpoint.
func (c *Client) RestartContainer(ctx context.Context, idOrName string) error {
	_, err := c.post(ctx, fmt.Sprintf("/v4.0.0/libpod/containers/%s/restart", idOrName), nil)
	return err
}

// ListContainers calls GET /v4.0.0/libpod/containers/json?all=true and
// converts libpod's container summaries into the evaluator's observation
// shape, feeding C10's periodic forward to C8 (spec §2 data flow).
func (c *Client) ListContainers(ctx context.Context) ([]proto.ContainerInfo, error) {
	data, err := c.get(ctx, "/v4.0.0/libpod/containers/json?all=true")
	if err != nil {
		return nil, err
	}
	var summaries []struct {
		Id    string   `json:"Id"`
		Names []string `json:"Names"`
		Image string   `json:"Image"`
		State string   `json:"State"`
	}
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, err
	}
	out := make([]proto.ContainerInfo, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, proto.ContainerInfo{
			ID:     s.Id,
			Names:  s.Names,
			Image:  s.Image,
			State:  map[string]string{"Status": s.State},
		})
	}
	return out, nil
}

// RemoveContainer force-removes a container by name (spec §6: DELETE
// .../containers/{name}?force=true).
func (c *Client) RemoveContainer(ctx context.Context, idOrName string) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/v4.0.0/libpod/containers/%s?force=true", idOrName), nil)
	return err
}
