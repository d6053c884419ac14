// Copyright The TrustTunnel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runtime

import (
	"context"
	"fmt"
	"io"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/google/uuid"
)

// containerdRuntime is the second Runtime backend, selected by
// Config.Engine == EngineContainerd. The pack shows Docker and containerd
// side by side as alternative sandbox backends (the teacher itself picks
// between them per-request); here the choice is a static config switch made
// once at gateway startup instead of per-session.
type containerdRuntime struct {
	client *containerd.Client
	conf   Config
}

// NewContainerdRuntime wraps an existing containerd client.
func NewContainerdRuntime(cli *containerd.Client, conf Config) Runtime {
	if conf.ContainerdNS == "" {
		conf.ContainerdNS = "default"
	}

	return &containerdRuntime{client: cli, conf: conf}
}

func (r *containerdRuntime) ctx() context.Context {
	return namespaces.WithNamespace(context.Background(), r.conf.ContainerdNS)
}

func (r *containerdRuntime) PullImage(ctx context.Context) error {
	return r.pullImage(ctx, nil)
}

func (r *containerdRuntime) pullImage(ctx context.Context, progress Progress) error {
	_, err := r.client.GetImage(r.ctx(), SandboxImage)
	if err == nil {
		return nil
	}

	logger.Infof("pulling sandbox image %s via containerd", SandboxImage)
	report(progress, fmt.Sprintf("pulling sandbox image %s", SandboxImage))

	_, err = r.client.Pull(r.ctx(), SandboxImage, containerd.WithPullUnpack)

	return err
}

func (r *containerdRuntime) EnsureContainer(ctx context.Context, email, existingID string, progress Progress) (string, error) {
	if existingID != "" {
		if c, err := r.client.LoadContainer(r.ctx(), existingID); err == nil {
			task, err := c.Task(r.ctx(), nil)
			if err == nil {
				status, err := task.Status(r.ctx())
				if err == nil && status.Status == containerd.Running {
					return c.ID(), nil
				}
			}

			report(progress, fmt.Sprintf("starting container %s", c.ID()))

			if err := r.startTask(c); err == nil {
				return c.ID(), nil
			}
		}

		logger.WithField("container", existingID).Warnf("stored containerd container unusable, creating new one")
	}

	report(progress, "creating new development environment...")

	return r.createAndStart(email, progress)
}

func (r *containerdRuntime) startTask(c containerd.Container) error {
	task, err := c.NewTask(r.ctx(), cio.NullIO)
	if err != nil {
		return err
	}

	return task.Start(r.ctx())
}

func (r *containerdRuntime) createAndStart(email string, progress Progress) (string, error) {
	if err := r.pullImage(r.ctx(), progress); err != nil {
		return "", err
	}

	image, err := r.client.GetImage(r.ctx(), SandboxImage)
	if err != nil {
		return "", fmt.Errorf("get image %s: %w", SandboxImage, err)
	}

	name := ContainerName(email)

	c, err := r.client.NewContainer(r.ctx(), name,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(name+"-snapshot", image),
		containerd.WithNewSpec(oci.WithImageConfig(image), oci.WithProcessArgs("/bin/bash")),
	)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", name, err)
	}

	report(progress, fmt.Sprintf("created container %s", c.ID()))

	if err := r.startTask(c); err != nil {
		return "", fmt.Errorf("start container %s: %w", name, err)
	}

	report(progress, fmt.Sprintf("starting container %s", c.ID()))

	return c.ID(), nil
}

// containerdExec is an ExecHandle backed by a containerd task exec.
type containerdExec struct {
	task   containerd.Task
	execID string
	stdin  io.WriteCloser
	stdout io.Reader
	exitCh <-chan containerd.ExitStatus
}

func (r *containerdRuntime) Exec(ctx context.Context, containerID string, cmd []string, tty bool) (ExecHandle, error) {
	c, err := r.client.LoadContainer(r.ctx(), containerID)
	if err != nil {
		return nil, fmt.Errorf("load container %s: %w", containerID, err)
	}

	task, err := c.Task(r.ctx(), nil)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", containerID, err)
	}

	spec, err := c.Spec(r.ctx())
	if err != nil {
		return nil, err
	}

	pSpec := *spec.Process
	pSpec.Terminal = tty
	pSpec.Args = cmd

	execID := uuid.NewString()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	process, err := task.Exec(r.ctx(), execID, &pSpec, cio.NewCreator(cio.WithStreams(inR, outW, outW)))
	if err != nil {
		return nil, fmt.Errorf("exec create: %w", err)
	}

	exitCh, err := process.Wait(r.ctx())
	if err != nil {
		return nil, err
	}

	if err := process.Start(r.ctx()); err != nil {
		return nil, err
	}

	return &containerdExec{task: task, execID: execID, stdin: inW, stdout: outR, exitCh: exitCh}, nil
}

func (e *containerdExec) Stdin() (interface{ Write([]byte) (int, error) }, error) {
	return e.stdin, nil
}

func (e *containerdExec) Reader() interface{ Read([]byte) (int, error) } {
	return e.stdout
}

func (e *containerdExec) Resize(ctx context.Context, rows, cols int) error {
	return e.task.Resize(ctx, uint32(cols), uint32(rows))
}

func (e *containerdExec) Wait(ctx context.Context) (int, error) {
	status := <-e.exitCh
	code, _, err := status.Result()

	return int(code), err
}

func (e *containerdExec) Close() error {
	return e.stdin.Close()
}
