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

package app

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/containerd/containerd"
	"github.com/sirupsen/logrus"

	"devbox-gateway/pkg/common/logutil"
	"devbox-gateway/pkg/gateway/backend"
	"devbox-gateway/pkg/gateway/orchestrator"
	"devbox-gateway/pkg/gateway/profile"
	"devbox-gateway/pkg/gateway/realtime"
	"devbox-gateway/pkg/gateway/registry"
	"devbox-gateway/pkg/gateway/runtime"
)

// runServer configures and starts the devbox-gateway server.
func runServer(opt *Option) error {
	level, err := logrus.ParseLevel(opt.LogConfig.Level)
	if err != nil {
		return err
	}

	logutil.SetLevel(level)
	logutil.SetExpireDay(opt.LogConfig.ExpireDays)

	setupSignal()

	if v := os.Getenv("PORT"); v != "" {
		opt.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		opt.ProfileConfig.Path = v
	}
	if v := os.Getenv("ALLOWED_ORIGIN"); v != "" {
		opt.BackendConfig.AllowedOrigin = v
	}
	if opt.Port == "" {
		opt.Port = "9000"
	}

	logGlobalConfig(opt)

	store, err := profile.NewFileStore(opt.ProfileConfig.Path)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}

	rt, err := newRuntime(opt.RuntimeConfig)
	if err != nil {
		return fmt.Errorf("init container runtime: %w", err)
	}

	ctx := context.Background()

	if err := rt.PullImage(ctx); err != nil {
		logrus.Warnf("pull sandbox image at boot: %v, will retry per session", err)
	}

	reg := registry.New()
	orch := orchestrator.New(reg, rt, store)
	dispatcher := realtime.NewDispatcher(orch)
	handler := backend.NewHandler(&opt.BackendConfig, dispatcher)

	addr := net.JoinHostPort(opt.Host, opt.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: handler.Router(),
	}

	if opt.TLSConfig.TLSVerify {
		tlsConfig, err := configTLS(&opt.TLSConfig)
		if err != nil {
			return err
		}

		server.TLSConfig = tlsConfig

		return server.ListenAndServeTLS("", "")
	}

	return server.ListenAndServe()
}

// newRuntime selects the Container Provisioner backend named by cfg.Engine
// and dials the underlying engine client it needs.
func newRuntime(cfg runtime.Config) (runtime.Runtime, error) {
	switch cfg.Engine {
	case runtime.EngineContainerd:
		ns := cfg.ContainerdNS
		if ns == "" {
			ns = "default"
		}

		cli, err := containerd.New(cfg.Endpoint, containerd.WithDefaultNamespace(ns))
		if err != nil {
			return nil, fmt.Errorf("dial containerd at %s: %w", cfg.Endpoint, err)
		}

		return runtime.NewContainerdRuntime(cli, cfg), nil
	default:
		cli, err := runtime.NewDockerClient(cfg.Endpoint, cfg.DockerAPIVersion)
		if err != nil {
			return nil, fmt.Errorf("dial docker at %s: %w", cfg.Endpoint, err)
		}

		return runtime.NewDockerRuntime(cli, cfg), nil
	}
}

// configTLS builds a mutual-TLS configuration from the command's TLS flags.
func configTLS(cfg *TLSConfig) (*tls.Config, error) {
	pool := x509.NewCertPool()

	caCert, err := os.ReadFile(cfg.TLSCA)
	if err != nil {
		return nil, err
	}

	pool.AppendCertsFromPEM(caCert)

	cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		RootCAs:      pool,
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		Certificates: []tls.Certificate{cert},
	}, nil
}
