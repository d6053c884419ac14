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
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	imageTypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"devbox-gateway/pkg/common/logutil"
)

var logger = logutil.GetLogger("gateway-runtime")

// dockerRuntime implements Runtime against the Docker Engine API.
type dockerRuntime struct {
	cli  client.CommonAPIClient
	conf Config
}

// NewDockerRuntime wraps an existing Docker client.
func NewDockerRuntime(cli client.CommonAPIClient, conf Config) Runtime {
	if conf.Cpus <= 0 {
		conf.Cpus = DefaultCPUs
	}

	if conf.MemoryMB <= 0 {
		conf.MemoryMB = DefaultMemoryMB
	}

	return &dockerRuntime{cli: cli, conf: conf}
}

// NewDockerClient builds a Docker API client bound to endpoint/apiVersion.
// An empty endpoint falls back to the standard DOCKER_HOST/DOCKER_* env
// vars (client.FromEnv) rather than failing client.WithHost("") validation.
func NewDockerClient(endpoint, apiVersion string) (client.CommonAPIClient, error) {
	opts := []client.Opt{client.FromEnv}
	if endpoint != "" {
		opts = append(opts, client.WithHost(endpoint))
	}

	if apiVersion != "" {
		opts = append(opts, client.WithVersion(apiVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}

	return client.NewClientWithOpts(opts...)
}

func (r *dockerRuntime) PullImage(ctx context.Context) error {
	return r.pullImage(ctx, nil)
}

func (r *dockerRuntime) pullImage(ctx context.Context, progress Progress) error {
	exists, err := r.imageExists(ctx)
	if err != nil {
		return fmt.Errorf("check image existence: %w", err)
	}

	if exists {
		return nil
	}

	logger.Infof("pulling sandbox image %s", SandboxImage)
	report(progress, fmt.Sprintf("pulling sandbox image %s", SandboxImage))

	body, err := r.cli.ImagePull(ctx, SandboxImage, imageTypes.PullOptions{
		RegistryAuth: base64.URLEncoding.EncodeToString([]byte(r.conf.ImageHubAuth)),
		Platform:     SandboxPlatform,
	})
	if err != nil {
		return err
	}
	defer body.Close()

	br := bufio.NewReader(body)

	for {
		line, _, err := br.ReadLine()
		if err == io.EOF {
			break
		}

		if err != nil {
			return fmt.Errorf("read image pull progress: %w", err)
		}

		logger.Debugf("%s", string(line))
	}

	if exists, err = r.imageExists(ctx); err != nil || !exists {
		return fmt.Errorf("failed to pull image %s", SandboxImage)
	}

	return nil
}

func (r *dockerRuntime) imageExists(ctx context.Context) (bool, error) {
	_, _, err := r.cli.ImageInspectWithRaw(ctx, SandboxImage)
	if err == nil {
		return true, nil
	}

	if client.IsErrNotFound(err) {
		return false, nil
	}

	return false, err
}

// EnsureContainer implements spec §4.1 steps 1-5: probe existingID, start it
// if stopped, or create a fresh named container when existingID is empty or
// no longer resolves.
func (r *dockerRuntime) EnsureContainer(ctx context.Context, email, existingID string, progress Progress) (string, error) {
	if existingID != "" {
		id, err := r.startExisting(ctx, existingID, progress)
		if err == nil {
			return id, nil
		}

		logger.WithField("container", existingID).Warnf("stored container unusable, creating new one: %v", err)
	}

	report(progress, "creating new development environment...")

	return r.createAndStart(ctx, email, progress)
}

func (r *dockerRuntime) startExisting(ctx context.Context, id string, progress Progress) (string, error) {
	info, err := r.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", ErrNoSuchContainer
		}

		return "", err
	}

	if info.State != nil && info.State.Running {
		return info.ID, nil
	}

	report(progress, fmt.Sprintf("starting container %s", info.ID))

	if err := r.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container %s: %w", id, err)
	}

	return info.ID, nil
}

func (r *dockerRuntime) createAndStart(ctx context.Context, email string, progress Progress) (string, error) {
	if err := r.pullImage(ctx, progress); err != nil {
		return "", err
	}

	name := ContainerName(email)

	contConfig := &container.Config{
		Image:        SandboxImage,
		Cmd:          []string{"/bin/bash"},
		Tty:          true,
		OpenStdin:    true,
		StdinOnce:    false,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Env:          []string{"TERM=xterm-256color", "COLORTERM=truecolor", "LC_ALL=C.UTF-8"},
	}

	hostConfig := &container.HostConfig{
		AutoRemove: false,
		Resources: container.Resources{
			CPUPeriod: 100000,
			CPUQuota:  int64(r.conf.Cpus * 100000),
			Memory:    int64(r.conf.MemoryMB) * 1024 * 1024,
		},
	}

	resp, err := r.cli.ContainerCreate(ctx, contConfig, hostConfig, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", name, err)
	}

	report(progress, fmt.Sprintf("created container %s", resp.ID))

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container %s: %w", resp.ID, err)
	}

	report(progress, fmt.Sprintf("starting container %s", resp.ID))

	return resp.ID, nil
}

// dockerExec is an ExecHandle backed by a Docker Engine exec, attached with
// or without a tty as the caller asked.
type dockerExec struct {
	ctx    context.Context
	cli    client.CommonAPIClient
	execID string
	conn   net.Conn
	reader io.Reader
}

func (r *dockerRuntime) Exec(ctx context.Context, containerID string, cmd []string, tty bool) (ExecHandle, error) {
	createResp, err := r.cli.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		Cmd:          cmd,
		Tty:          tty,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create exec: %w", err)
	}

	attachResp, err := r.cli.ContainerExecAttach(ctx, createResp.ID, types.ExecStartCheck{Tty: tty})
	if err != nil {
		return nil, fmt.Errorf("attach exec: %w", err)
	}

	var reader io.Reader = attachResp.Reader
	if !tty {
		// Without a tty the engine frames stdout and stderr on one stream;
		// strip the frame headers so callers read plain combined output.
		pr, pw := io.Pipe()
		go func() {
			_, err := stdcopy.StdCopy(pw, pw, attachResp.Reader)
			pw.CloseWithError(err)
		}()
		reader = pr
	}

	return &dockerExec{ctx: ctx, cli: r.cli, execID: createResp.ID, conn: attachResp.Conn, reader: reader}, nil
}

func (e *dockerExec) Stdin() (interface{ Write([]byte) (int, error) }, error) {
	if e.conn == nil {
		return nil, io.EOF
	}

	return e.conn, nil
}

func (e *dockerExec) Reader() interface{ Read([]byte) (int, error) } {
	return e.reader
}

func (e *dockerExec) Resize(ctx context.Context, rows, cols int) error {
	return e.cli.ContainerExecResize(ctx, e.execID, container.ResizeOptions{Height: uint(rows), Width: uint(cols)})
}

func (e *dockerExec) Wait(ctx context.Context) (int, error) {
	inspect, err := e.cli.ContainerExecInspect(ctx, e.execID)
	if err != nil {
		return 0, err
	}

	return inspect.ExitCode, nil
}

func (e *dockerExec) Close() error {
	if e.conn != nil {
		return e.conn.Close()
	}

	return nil
}
