package nodeagent

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/piccolo-project/piccolo/internal/nodeagent/podman"
	"github.com/piccolo-project/piccolo/internal/proto"
)

// fakePodman serves just enough of the libpod REST surface for the
// dispatcher tests below, over a real UNIX socket.
func fakePodman(t *testing.T) (socketPath string, shutdown func()) {
	t.Helper()
	dir := t.TempDir()
	socketPath = filepath.Join(dir, "podman.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/v4.0.0/libpod/images/json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/v4.0.0/libpod/images/pull", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/v4.0.0/libpod/containers/create", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"Id": "cid123"})
	})
	mux.HandleFunc("/v4.0.0/libpod/containers/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/restart") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(listener)
	return socketPath, func() { srv.Close() }
}

func TestDispatcher_CreateWritesPodYAML(t *testing.T) {
	dir := t.TempDir()
	d := New(podman.NewClient("", 0), dir)

	cmd := proto.WorkloadCommand{
		Command:   string(CommandCreate),
		ModelName: "m1",
		Pod: &proto.PodSpec{
			ModelName: "m1",
			Containers: []proto.ContainerSpec{
				{Name: "c1", Image: "nginx:latest", Command: []string{"/bin/x"}},
			},
		},
	}
	resp, err := d.HandleWorkload(context.Background(), cmd)
	require.NoError(t, err)
	require.Equal(t, int32(0), resp.Status)

	_, err = os.Stat(filepath.Join(dir, "m1.yaml"))
	require.NoError(t, err)
}

func TestDispatcher_StartCreatesAndStartsEachContainer(t *testing.T) {
	socket, shutdown := fakePodman(t)
	defer shutdown()
	dir := t.TempDir()
	d := New(podman.NewClient(socket, 0), dir)

	cmd := proto.WorkloadCommand{
		Command:   string(CommandCreate),
		ModelName: "m1",
		Pod: &proto.PodSpec{
			ModelName: "m1",
			Containers: []proto.ContainerSpec{
				{Name: "c1", Image: "nginx:latest"},
			},
		},
	}
	_, err := d.HandleWorkload(context.Background(), cmd)
	require.NoError(t, err)

	resp, err := d.HandleWorkload(context.Background(), proto.WorkloadCommand{Command: string(CommandStart), ModelName: "m1"})
	require.NoError(t, err)
	require.Equal(t, int32(0), resp.Status)
}

func TestDispatcher_RestartFallsBackToStopStartOnFailure(t *testing.T) {
	socket, shutdown := fakePodman(t)
	defer shutdown()
	dir := t.TempDir()
	d := New(podman.NewClient(socket, 0), dir)

	_, err := d.HandleWorkload(context.Background(), proto.WorkloadCommand{
		Command: string(CommandCreate), ModelName: "m1",
		Pod: &proto.PodSpec{ModelName: "m1", Containers: []proto.ContainerSpec{{Name: "c1", Image: "nginx"}}},
	})
	require.NoError(t, err)

	resp, err := d.HandleWorkload(context.Background(), proto.WorkloadCommand{Command: string(CommandRestart), ModelName: "m1"})
	require.NoError(t, err)
	require.Equal(t, int32(0), resp.Status)
}

func TestContainerName(t *testing.T) {
	require.Equal(t, "m1_c1", containerName("m1", "c1"))
}

func TestPortBindings(t *testing.T) {
	b := portBindings([]string{"8080"})
	require.Equal(t, "8080", b["8080/tcp"][0].HostPort)
}

func TestBinds_SkipsUnresolvedVolumes(t *testing.T) {
	out := binds([]string{"data", "missing"}, map[string]string{"data": "/host/data"})
	require.Equal(t, []string{"/host/data:/data"}, out)
}
