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

package escalation

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

// TokenIssuer signs and verifies short-lived tokens that authorize
// resolving a specific escalation over a non-local interface (e.g. a
// webhook callback). Local/CLI resolution never needs a token.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer returns an issuer signing with HS256 over secret. ttl<=0
// defaults to 15 minutes.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Issue mints a token authorizing a respond() call for escalationID.
func (i *TokenIssuer) Issue(escalationID string) (string, error) {
	now := time.Now()
	token, err := jwt.NewBuilder().
		Subject(escalationID).
		IssuedAt(now).
		Expiration(now.Add(i.ttl)).
		Claim("purpose", "escalation_response").
		Build()
	if err != nil {
		return "", errs.Externalf(component, "Issue", err, "build token for %s", escalationID)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, i.secret))
	if err != nil {
		return "", errs.Externalf(component, "Issue", err, "sign token for %s", escalationID)
	}
	return string(signed), nil
}

// Verify checks tokenString is valid, unexpired, and authorizes
// escalationID, returning an error otherwise.
func (i *TokenIssuer) Verify(tokenString, escalationID string) error {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256, i.secret),
		jwt.WithValidate(true),
	)
	if err != nil {
		return errs.Preconditionf(component, "Verify", "invalid or expired response token: %v", err)
	}

	if token.Subject() != escalationID {
		return errs.Preconditionf(component, "Verify", "response token does not authorize escalation %s", escalationID)
	}

	purpose, ok := token.Get("purpose")
	if !ok || fmt.Sprint(purpose) != "escalation_response" {
		return errs.Preconditionf(component, "Verify", "response token has wrong purpose")
	}
	return nil
}
