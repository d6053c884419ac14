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

// TLSConfig defines the options for TLS configuration, including CA,
// certificate, and key.
type TLSConfig struct {
	// TLSVerify indicates whether to verify the client's certificate.
	TLSVerify bool `toml:"tls_verify"`
	// TLSCA is the path to the TLS Certificate Authority (CA) certificate.
	TLSCA string `toml:"tls_ca"`
	// TLSCert is the path to the server's TLS certificate.
	TLSCert string `toml:"tls_cert"`
	// TLSKey is the path to the server's TLS private key.
	TLSKey string `toml:"tls_key"`
}
