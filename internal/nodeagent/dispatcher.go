// Package nodeagent implements the Node Agent Workload Dispatcher (C10):
// Pod YAML materialization and the podman-driven Create/Start/Stop/Restart
// command path (spec §4.10), grounded on
// original_source/src/agent/nodeagent/src/runtime/podman/container.rs.
package nodeagent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"github.com/piccolo-project/piccolo/internal/nodeagent/podman"
	"github.com/piccolo-project/piccolo/internal/proto"
)

// maxConcurrentContainerOps bounds how many containers of a single Pod are
// created/started against the local engine at once, so a large multi-
// container Model cannot saturate the podman socket's connection pool.
const maxConcurrentContainerOps = 4

// DefaultYAMLDir is the directory Pod YAMLs are materialized under (spec §6).
const DefaultYAMLDir = "/etc/piccolo/yaml"

// Command is one of the four workload commands (spec §4.10).
type Command string

const (
	CommandCreate  Command = "Create"
	CommandStart   Command = "Start"
	CommandStop    Command = "Stop"
	CommandRestart Command = "Restart"
)

// podYAML is the on-disk shape written/read under DefaultYAMLDir.
type podYAML struct {
	ModelName   string            `yaml:"modelName"`
	HostNetwork bool              `yaml:"hostNetwork"`
	Containers  []containerYAML   `yaml:"containers"`
	Volumes     map[string]string `yaml:"volumes"`
}

type containerYAML struct {
	Name         string            `yaml:"name"`
	Image        string            `yaml:"image"`
	Ports        []string          `yaml:"ports"`
	Env          map[string]string `yaml:"env"`
	Command      []string          `yaml:"command"`
	VolumeMounts []string          `yaml:"volumeMounts"`
}

// Dispatcher handles workload commands for models assigned to this node.
type Dispatcher struct {
	client  *podman.Client
	yamlDir string
}

// New builds a Dispatcher. An empty yamlDir selects DefaultYAMLDir.
func New(client *podman.Client, yamlDir string) *Dispatcher {
	if yamlDir == "" {
		yamlDir = DefaultYAMLDir
	}
	return &Dispatcher{client: client, yamlDir: yamlDir}
}

func (d *Dispatcher) yamlPath(modelName string) string {
	return filepath.Join(d.yamlDir, modelName+".yaml")
}

// containerName derives "{podName}_{containerName}" naming for a model (spec
// invariant 7). PICCOLO names pods after their model.
func containerName(modelName, containerName string) string {
	return fmt.Sprintf("%s_%s", modelName, containerName)
}

// HandleWorkload is C10's public contract: handleWorkload({command, pod |
// modelName}).
func (d *Dispatcher) HandleWorkload(ctx context.Context, cmd proto.WorkloadCommand) (proto.ReconcileResponse, error) {
	switch Command(cmd.Command) {
	case CommandCreate:
		return d.create(cmd)
	case CommandStart:
		return d.start(ctx, cmd.ModelName)
	case CommandStop:
		return d.stop(ctx, cmd.ModelName)
	case CommandRestart:
		return d.restart(ctx, cmd.ModelName)
	default:
		return proto.ReconcileResponse{Status: 1, Desc: "unknown command"}, errors.Errorf("nodeagent: unknown command %q", cmd.Command)
	}
}

// create materializes the Model's Pod YAML (spec §4.10 "Create").
func (d *Dispatcher) create(cmd proto.WorkloadCommand) (proto.ReconcileResponse, error) {
	if cmd.Pod == nil {
		return proto.ReconcileResponse{Status: 1, Desc: "missing pod spec"}, errors.New("nodeagent: Create requires a pod spec")
	}
	if err := os.MkdirAll(d.yamlDir, 0o755); err != nil {
		return proto.ReconcileResponse{Status: 1, Desc: "mkdir failed"}, errors.Wrap(err, "nodeagent: create yaml dir")
	}

	doc := podYAML{
		ModelName:   cmd.Pod.ModelName,
		HostNetwork: cmd.Pod.HostNetwork,
		Volumes:     cmd.Pod.Volumes,
	}
	for _, c := range cmd.Pod.Containers {
		doc.Containers = append(doc.Containers, containerYAML{
			Name: c.Name, Image: c.Image, Ports: c.Ports,
			Env: c.Env, Command: c.Command, VolumeMounts: c.VolumeMounts,
		})
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return proto.ReconcileResponse{Status: 1, Desc: "marshal failed"}, errors.Wrap(err, "nodeagent: marshal pod yaml")
	}
	if err := os.WriteFile(d.yamlPath(cmd.Pod.ModelName), data, 0o644); err != nil {
		return proto.ReconcileResponse{Status: 1, Desc: "write failed"}, errors.Wrap(err, "nodeagent: write pod yaml")
	}
	return proto.ReconcileResponse{Status: 0, Desc: "created"}, nil
}

func (d *Dispatcher) loadPod(modelName string) (podYAML, error) {
	data, err := os.ReadFile(d.yamlPath(modelName))
	if err != nil {
		return podYAML{}, errors.Wrapf(err, "nodeagent: read pod yaml for %q", modelName)
	}
	var doc podYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return podYAML{}, errors.Wrapf(err, "nodeagent: parse pod yaml for %q", modelName)
	}
	return doc, nil
}

// start implements spec §4.10 "Start": parse the YAML, ensure each image is
// present (pulling if missing), build the creation request, create and
// start each container. Containers are brought up concurrently, bounded by
// a weighted semaphore, since a Pod's containers have no ordering
// dependency between each other.
func (d *Dispatcher) start(ctx context.Context, modelName string) (proto.ReconcileResponse, error) {
	doc, err := d.loadPod(modelName)
	if err != nil {
		return proto.ReconcileResponse{Status: 1, Desc: "pod yaml missing"}, err
	}

	networkMode := ""
	if doc.HostNetwork {
		networkMode = "host"
	}

	sem := semaphore.NewWeighted(maxConcurrentContainerOps)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, c := range doc.Containers {
		c := c
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = errors.Wrap(err, "nodeagent: acquire start slot")
			}
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if err := d.startOne(ctx, modelName, networkMode, doc.Volumes, c); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return proto.ReconcileResponse{Status: 1, Desc: "start failed"}, firstErr
	}
	return proto.ReconcileResponse{Status: 0, Desc: "started"}, nil
}

func (d *Dispatcher) startOne(ctx context.Context, modelName, networkMode string, volumes map[string]string, c containerYAML) error {
	name := containerName(modelName, c.Name)

	exists, err := d.client.ImageExists(ctx, c.Image)
	if err != nil {
		return errors.Wrapf(err, "nodeagent: image_exists %q", c.Image)
	}
	if !exists {
		if err := d.client.PullImage(ctx, c.Image); err != nil {
			return errors.Wrapf(err, "nodeagent: pull_image %q", c.Image)
		}
	}

	req := podman.CreateRequest{
		Image: c.Image,
		Name:  name,
		Env:   c.Env,
		Cmd:   c.Command,
		HostConfig: podman.HostConfig{
			NetworkMode:  networkMode,
			PortBindings: portBindings(c.Ports),
			Binds:        binds(c.VolumeMounts, volumes),
		},
	}
	id, err := d.client.CreateContainer(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "nodeagent: create container %q", name)
	}
	if err := d.client.StartContainer(ctx, id); err != nil {
		return errors.Wrapf(err, "nodeagent: start container %q", name)
	}
	return nil
}

// stop implements spec §4.10 "Stop": best-effort; iteration proceeds past
// individual container failures, which are logged as warnings only.
func (d *Dispatcher) stop(ctx context.Context, modelName string) (proto.ReconcileResponse, error) {
	doc, err := d.loadPod(modelName)
	if err != nil {
		return proto.ReconcileResponse{Status: 1, Desc: "pod yaml missing"}, err
	}
	for _, c := range doc.Containers {
		name := containerName(modelName, c.Name)
		if err := d.client.StopContainer(ctx, name); err != nil {
			logrus.WithError(err).WithField("container", name).Warn("stop failed, continuing")
		}
		if err := d.client.RemoveContainer(ctx, name); err != nil {
			logrus.WithError(err).WithField("container", name).Warn("remove failed, continuing")
		}
	}
	return proto.ReconcileResponse{Status: 0, Desc: "stopped"}, nil
}

// restart implements spec §4.10 "Restart": call the engine's restart
// endpoint per container; on ANY container's failure, fall back to a full
// stop/start of the whole Model. (This fixes a scoping artifact in the
// original Rust implementation, which only triggered the fallback on the
// first container's failure due to an early return inside its loop.)
func (d *Dispatcher) restart(ctx context.Context, modelName string) (proto.ReconcileResponse, error) {
	doc, err := d.loadPod(modelName)
	if err != nil {
		return proto.ReconcileResponse{Status: 1, Desc: "pod yaml missing"}, err
	}

	anyFailed := false
	for _, c := range doc.Containers {
		name := containerName(modelName, c.Name)
		if err := d.client.RestartContainer(ctx, name); err != nil {
			logrus.WithError(err).WithField("container", name).Warn("restart failed, will fall back to stop/start")
			anyFailed = true
		}
	}
	if !anyFailed {
		return proto.ReconcileResponse{Status: 0, Desc: "restarted"}, nil
	}

	if _, err := d.stop(ctx, modelName); err != nil {
		return proto.ReconcileResponse{Status: 1, Desc: "restart fallback stop failed"}, err
	}
	return d.start(ctx, modelName)
}

func portBindings(ports []string) map[string][]podman.PortBinding {
	if len(ports) == 0 {
		return nil
	}
	out := make(map[string][]podman.PortBinding, len(ports))
	for _, p := range ports {
		out[p+"/tcp"] = []podman.PortBinding{{HostPort: p}}
	}
	return out
}

func binds(mounts []string, volumes map[string]string) []string {
	if len(mounts) == 0 {
		return nil
	}
	var out []string
	for _, mount := range mounts {
		if hostPath, ok := volumes[mount]; ok {
			out = append(out, hostPath+":/"+mount)
		}
	}
	return out
}
