// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package validate

import (
	"fmt"
	"strings"
	"time"
)

// SecurityGate is the pass threshold for SecurityGateValidator's score.
// Score is 5 × satisfiedChecks (20 checks total); passed iff score ≥ 95,
// i.e. at least 19 of 20 checks satisfied.
const SecurityGate = 95.0

// securityCheck is one keyword-matched check within a category.
type securityCheck struct {
	category       string
	name           string
	keywords       []string
	recommendation string
}

// securityChecklist is the twenty checks across six categories. The
// vocabulary is illustrative, not exhaustive, same as the architecture
// validator's contradictionPairs: a small, named, extensible keyword set.
var securityChecklist = []securityCheck{
	// authentication / authorization
	{"authentication_authorization", "authentication mechanism", []string{"authentication", "auth"}, "document how users and services authenticate"},
	{"authentication_authorization", "authorization model", []string{"authorization", "rbac", "access control"}, "document the authorization/access-control model"},
	{"authentication_authorization", "session management", []string{"session", "token expiry", "token expiration"}, "document session or token lifecycle handling"},
	{"authentication_authorization", "multi-factor authentication", []string{"mfa", "multi-factor", "two-factor", "2fa"}, "consider multi-factor authentication for privileged access"},

	// secrets management
	{"secrets_management", "secrets storage", []string{"secrets manager", "vault", "secret store"}, "store secrets in a dedicated secrets manager, not config files"},
	{"secrets_management", "no hardcoded credentials", []string{"no hardcoded", "environment variable", "env var"}, "load credentials from environment or secrets manager, never hardcode"},
	{"secrets_management", "key rotation", []string{"key rotation", "rotate", "rotation policy"}, "define a rotation policy for keys and credentials"},

	// input validation
	{"input_validation", "input sanitization", []string{"input validation", "sanitiz", "sanitise"}, "validate and sanitize all external input"},
	{"input_validation", "injection prevention", []string{"sql injection", "injection", "parameterized quer", "prepared statement"}, "use parameterized queries to prevent injection"},
	{"input_validation", "schema validation", []string{"schema validation", "request validation"}, "validate request payloads against a schema"},

	// API security
	{"api_security", "rate limiting", []string{"rate limit", "throttl"}, "rate-limit public API endpoints"},
	{"api_security", "cors policy", []string{"cors"}, "define an explicit CORS policy"},
	{"api_security", "api versioning", []string{"api version", "versioning"}, "version the API to avoid breaking clients"},
	{"api_security", "request/response validation", []string{"request signing", "hmac", "webhook signature"}, "sign or verify inter-service requests where applicable"},

	// encryption
	{"encryption", "encryption in transit", []string{"tls", "https", "encryption in transit"}, "require TLS for all network traffic"},
	{"encryption", "encryption at rest", []string{"encryption at rest", "encrypted storage", "disk encryption"}, "encrypt sensitive data at rest"},
	{"encryption", "key management", []string{"kms", "key management"}, "use a managed key-management service"},

	// threat model
	{"threat_model", "threat modeling performed", []string{"threat model", "stride", "attack surface"}, "document a threat model for this system"},
	{"threat_model", "dependency vulnerability scanning", []string{"dependency scan", "vulnerability scan", "sca"}, "scan dependencies for known vulnerabilities"},
	{"threat_model", "audit logging", []string{"audit log", "audit trail"}, "maintain an audit trail of security-relevant events"},
	{"threat_model", "incident response plan", []string{"incident response", "runbook"}, "document an incident-response runbook"},
}

// SecurityGateValidator scores a document's coverage of the twenty
// security checks, grouped into six categories.
type SecurityGateValidator struct{}

// NewSecurityGateValidator constructs a SecurityGateValidator.
func NewSecurityGateValidator() *SecurityGateValidator { return &SecurityGateValidator{} }

// Validate scores doc against the checklist. Matching is case-insensitive.
func (v *SecurityGateValidator) Validate(doc string) *ValidationReport {
	lower := strings.ToLower(doc)

	byCategory := make(map[string]*DimensionResult)
	order := []string{}
	satisfied := 0

	for _, check := range securityChecklist {
		dim, ok := byCategory[check.category]
		if !ok {
			dim = &DimensionResult{Name: check.category}
			byCategory[check.category] = dim
			order = append(order, check.category)
		}

		found := false
		for _, kw := range check.keywords {
			if strings.Contains(lower, kw) {
				found = true
				break
			}
		}
		if found {
			satisfied++
			dim.Score++ // temporarily a raw satisfied-count; normalized below
		} else {
			dim.Findings.Gaps = append(dim.Findings.Gaps, fmt.Sprintf("%s: %s not found", check.category, check.name))
			dim.Findings.Recommendations = append(dim.Findings.Recommendations, check.recommendation)
		}
	}

	dims := make([]DimensionResult, 0, len(order))
	for _, category := range order {
		dim := byCategory[category]
		total := 0
		for _, check := range securityChecklist {
			if check.category == category {
				total++
			}
		}
		dim.Score = 100 * dim.Score / float64(total)
		dims = append(dims, *dim)
	}

	score := 5 * float64(satisfied)
	return &ValidationReport{
		OverallScore: score,
		Dimensions:   dims,
		Passed:       score >= SecurityGate,
		Timestamp:    time.Now().UTC(),
	}
}
