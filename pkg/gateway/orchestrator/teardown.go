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

package orchestrator

import (
	"devbox-gateway/pkg/gateway/monitor"
	"devbox-gateway/pkg/gateway/registry"
)

// Controller runs the teardown codepath shared by close_terminal, a shell
// child exiting on its own, and a client disconnect — whichever fires
// first wins, and registry.Remove is the single dedup point: the first
// caller to observe ok==true does the work, every later caller for the
// same email is a no-op (spec §4.8/§4.9).
type Controller struct {
	reg *registry.Registry
}

// NewController builds a Teardown Controller around reg.
func NewController(reg *registry.Registry) *Controller {
	return &Controller{reg: reg}
}

// Run tears down email's live session, if any is still registered. reason
// is logged only — it does not change behavior, matching every trigger
// path converging on the same cleanup.
func (c *Controller) Run(email, reason string) {
	sess, ok := c.reg.Remove(email)
	if !ok {
		logger.Debugf("teardown for %s (%s): already torn down", email, reason)

		return
	}

	logger.Infof("tearing down session for %s: %s", email, reason)

	killShell(sess.Shell)
	killShell(sess.Secondary)

	monitor.MetricsTeardownCount.WithLabelValues(reason).Inc()
	monitor.MetricsLiveSessions.Set(float64(c.reg.Len()))
}
