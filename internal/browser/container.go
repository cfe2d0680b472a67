package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"
)

const containerPort = "3000/tcp"

// imageAPI is the slice of the Docker client EnsureImage needs.
type imageAPI interface {
	ImageInspect(ctx context.Context, ref string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error)
}

// ContainerLauncher runs Chrome in a Docker container and attaches over
// the DevTools WebSocket endpoint.
type ContainerLauncher struct {
	client      *client.Client
	images      imageAPI
	image       string
	sessionID   string
	opts        Options
	containerID string
	log         zerolog.Logger
}

// NewContainerLauncher creates a Docker-backed launcher for one session.
func NewContainerLauncher(img, sessionID string, opts Options, log zerolog.Logger) (*ContainerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &ContainerLauncher{
		client:    cli,
		images:    cli,
		image:     img,
		sessionID: sessionID,
		opts:      opts,
		log:       log,
	}, nil
}

// EnsureImage pulls the Chrome image if it is not present locally.
func (l *ContainerLauncher) EnsureImage(ctx context.Context) error {
	if _, err := l.images.ImageInspect(ctx, l.image); err == nil {
		return nil
	}
	l.log.Info().Str("image", l.image).Msg("pulling chrome image")
	rc, err := l.images.ImagePull(ctx, l.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", l.image, err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

func (l *ContainerLauncher) Allocate(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := l.EnsureImage(ctx); err != nil {
		return nil, nil, err
	}

	containerConfig := &container.Config{
		Image: l.image,
		Labels: map[string]string{
			"session-id": l.sessionID,
			"managed-by": "zoom-meeting-bot",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			// The virtual camera needs fake capture devices inside the
			// container as well.
			"DEFAULT_LAUNCH_ARGS=[\"--use-fake-ui-for-media-stream\",\"--use-fake-device-for-media-stream\",\"--autoplay-policy=no-user-gesture-required\",\"--window-size=1280,720\"]",
		},
		ExposedPorts: nat.PortSet{containerPort: struct{}{}},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "0"}},
		},
		AutoRemove: false,
	}

	name := fmt.Sprintf("meeting-session-%s", shortID(l.sessionID))
	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, nil, fmt.Errorf("create chrome container: %w", err)
	}
	l.containerID = resp.ID

	if err := l.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, nil, fmt.Errorf("start chrome container: %w", err)
	}

	inspect, err := l.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("inspect chrome container: %w", err)
	}
	bindings := inspect.NetworkSettings.Ports[nat.Port(containerPort)]
	if len(bindings) == 0 {
		return nil, nil, fmt.Errorf("chrome container exposes no host port")
	}
	hostPort := bindings[0].HostPort

	wsURL, err := l.waitForDevTools(ctx, hostPort)
	if err != nil {
		return nil, nil, err
	}

	l.log.Info().Str("container", shortID(resp.ID)).Str("ws", wsURL).Msg("chrome container ready")

	allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, wsURL)
	return allocCtx, cancel, nil
}

// waitForDevTools polls the container's /json/version endpoint until the
// DevTools WebSocket URL is published.
func (l *ContainerLauncher) waitForDevTools(ctx context.Context, hostPort string) (string, error) {
	deadline := time.Now().Add(30 * time.Second)
	url := fmt.Sprintf("http://127.0.0.1:%s/json/version", hostPort)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}

		resp, err := http.Get(url)
		if err != nil {
			continue
		}
		var version struct {
			WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
		}
		err = json.NewDecoder(resp.Body).Decode(&version)
		resp.Body.Close()
		if err == nil && version.WebSocketDebuggerURL != "" {
			return version.WebSocketDebuggerURL, nil
		}
	}
	return "", fmt.Errorf("chrome container did not become ready on port %s", hostPort)
}

func (l *ContainerLauncher) Close(ctx context.Context) error {
	if l.containerID == "" {
		return l.client.Close()
	}
	timeout := 10
	if err := l.client.ContainerStop(ctx, l.containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		l.log.Warn().Err(err).Str("container", shortID(l.containerID)).Msg("failed to stop chrome container")
	}
	if err := l.client.ContainerRemove(ctx, l.containerID, container.RemoveOptions{Force: true}); err != nil {
		l.log.Warn().Err(err).Str("container", shortID(l.containerID)).Msg("failed to remove chrome container")
	}
	l.containerID = ""
	return l.client.Close()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
