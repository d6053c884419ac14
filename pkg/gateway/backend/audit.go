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

package backend

import (
	"encoding/json"
	"net/http"
	"time"

	"devbox-gateway/pkg/common/logutil"
	"devbox-gateway/pkg/common/netutil"
)

var auditLogger = logutil.GetLogger("gateway-audit")

// connectInfo records one real-time channel connection attempt; the email
// it is for is not known until the first load_terminal event, so this
// audit line covers only transport-level facts.
type connectInfo struct {
	GmtCreate string `json:"gmt_create"`
	GatewayIP string `json:"gateway_ip"`
	HostName  string `json:"hostname"`
	SrcIP     string `json:"src_ip"`
	UserAgent string `json:"user_agent"`
}

// constructAuditInfo logs one audit line per incoming upgrade request,
// mirroring the teacher's constructAuditInfo/printLog pattern.
func constructAuditInfo(r *http.Request) {
	info := connectInfo{
		GmtCreate: time.Now().Format("2006.01.02 15:04:05"),
		GatewayIP: netutil.GetMainIP(),
		SrcIP:     r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}

	info.HostName, _ = netutil.GetHostName()

	printLog(info)
}

// printLog prints the audit record as a json string.
func printLog(info connectInfo) {
	b, err := json.Marshal(info)
	if err != nil {
		return
	}

	auditLogger.Info(string(b))
}
