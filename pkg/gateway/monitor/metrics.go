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

// Package monitor exposes the gateway's prometheus metrics and an HTTP
// middleware that records them for every request (spec's ambient
// observability stack, carried over from the teacher even though the
// distilled spec never names a metrics component).
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MetricsHTTPRequestRt = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_rt_us",
		Help:    "The time of each http request",
		Buckets: []float64{1000, 2000, 3000, 5000, 8000},
	}, []string{"path", "method"})

	MetricsHTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "The count of http requests by path, method and status code",
	}, []string{"path", "method", "code"})

	MetricsHTTPCurrentRequests = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_current_requests_total",
		Help: "The count of in-flight http requests",
	}, []string{"path", "method"})

	MetricsEstablishSessionError = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "establish_session_error",
		Help: "The count of load_terminal calls that failed to establish a session",
	}, []string{})

	MetricsEstablishSessionSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "establish_session_success",
		Help: "The count of load_terminal calls that established a session",
	}, []string{})

	MetricsLiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "live_sessions",
		Help: "The count of currently live terminal sessions",
	})

	MetricsTeardownCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_teardown_total",
		Help: "The count of session teardowns by trigger reason",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		MetricsHTTPRequestRt,
		MetricsHTTPRequests,
		MetricsHTTPCurrentRequests,
		MetricsEstablishSessionError,
		MetricsEstablishSessionSuccess,
		MetricsLiveSessions,
		MetricsTeardownCount,
	)
}
