package jwtx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryMargin is how close to "exp" a token may get before it is treated as
// expiring and refetched.
const ExpiryMargin = 10 * time.Second

// Claim keys read from an identity token payload.
const (
	claimAudience        = "aud"
	claimCustomFirstName = "custom:first_name" // Sign in with Apple maps names here
	claimCustomLastName  = "custom:last_name"
	claimCognitoUsername = "cognito:username"
	claimEmail           = "email"
	claimExpiration      = "exp"
	claimGivenName       = "given_name"
	claimIdentities      = "identities"
	claimMiddleName      = "middle_name"
	claimName            = "name"
	claimFamilyName      = "family_name"
	claimPersonID        = "custom:person_id"
	claimSubject         = "sub"

	identityProviderType = "providerType"
)

// LoginProvider is the federated identity provider a session was created
// with. The zero value means the session is not federated (or unknown).
type LoginProvider string

const (
	LoginProviderNone     LoginProvider = ""
	LoginProviderApple    LoginProvider = "SignInWithApple"
	LoginProviderFacebook LoginProvider = "Facebook"
)

func parseLoginProvider(s string) LoginProvider {
	switch LoginProvider(s) {
	case LoginProviderApple:
		return LoginProviderApple
	case LoginProviderFacebook:
		return LoginProviderFacebook
	default:
		return LoginProviderNone
	}
}

// Claims is the decoded body of an identity token. Only ExpiresAt is
// guaranteed; every other field is the zero value when the claim was absent
// or could not be read.
type Claims struct {
	Audience        []string
	CognitoUsername string
	Email           string

	// ExpiresAt is the "exp" claim in epoch seconds.
	ExpiresAt int64

	FirstName  string
	MiddleName string
	LastName   string

	LoginProvider LoginProvider
	PersonID      string
	Subject       string
}

// segmentParser only decodes segments, it never verifies anything. Padding
// is allowed so both raw and padded base64url payloads are accepted.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeClaims splits an identity token and decodes its payload segment. The
// signature is not checked, the token comes straight from the identity
// provider.
func DecodeClaims(idToken string) (*Claims, error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}

	return claimsFromPayload(raw)
}

func claimsFromPayload(raw map[string]json.RawMessage) (*Claims, error) {
	exp, err := expirationClaim(raw)
	if err != nil {
		return nil, err
	}

	c := &Claims{
		ExpiresAt:       exp,
		Audience:        audienceClaim(raw),
		CognitoUsername: stringClaim(raw, claimCognitoUsername),
		Email:           stringClaim(raw, claimEmail),
		LoginProvider:   loginProviderClaim(raw),
		PersonID:        stringClaim(raw, claimPersonID),
		Subject:         stringClaim(raw, claimSubject),
	}

	if fullName, ok := lookupString(raw, claimName); ok {
		c.FirstName, c.MiddleName, c.LastName = splitFullName(fullName)
	} else {
		c.FirstName = firstPresent(raw, claimGivenName, claimCustomFirstName)
		c.MiddleName = stringClaim(raw, claimMiddleName)
		c.LastName = firstPresent(raw, claimFamilyName, claimCustomLastName)
	}

	return c, nil
}

func expirationClaim(raw map[string]json.RawMessage) (int64, error) {
	v, ok := raw[claimExpiration]
	if !ok || isNull(v) {
		return 0, ErrMissingExpiration
	}

	var exp jwt.NumericDate
	if err := json.Unmarshal(v, &exp); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMissingExpiration, err)
	}
	return exp.Unix(), nil
}

// splitFullName splits "name" on spaces: first word, last word, and whatever
// sits between them joined by single spaces.
func splitFullName(fullName string) (first, middle, last string) {
	words := strings.FieldsFunc(fullName, func(r rune) bool { return r == ' ' })
	if len(words) == 0 {
		return "", "", ""
	}

	first = words[0]
	last = words[len(words)-1]
	if len(words) > 2 {
		middle = strings.Join(words[1:len(words)-1], " ")
	}
	return first, middle, last
}

func audienceClaim(raw map[string]json.RawMessage) []string {
	v, ok := raw[claimAudience]
	if !ok {
		return nil
	}

	var aud jwt.ClaimStrings
	if err := json.Unmarshal(v, &aud); err != nil {
		return nil
	}
	return aud
}

func loginProviderClaim(raw map[string]json.RawMessage) LoginProvider {
	v, ok := raw[claimIdentities]
	if !ok {
		return LoginProviderNone
	}

	var identities []map[string]any
	if err := json.Unmarshal(v, &identities); err != nil || len(identities) == 0 {
		return LoginProviderNone
	}

	providerType, _ := identities[0][identityProviderType].(string)
	return parseLoginProvider(providerType)
}

// lookupString reports whether key holds a JSON string. Wrong types count as
// absent.
func lookupString(raw map[string]json.RawMessage, key string) (string, bool) {
	v, ok := raw[key]
	if !ok || isNull(v) {
		return "", false
	}

	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func stringClaim(raw map[string]json.RawMessage, key string) string {
	s, _ := lookupString(raw, key)
	return s
}

// firstPresent returns the first of keys that holds a string.
func firstPresent(raw map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		if s, ok := lookupString(raw, key); ok {
			return s
		}
	}
	return ""
}

// Expiry returns ExpiresAt as a time.
func (c *Claims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// IsAboutToExpire reports whether the token expires within ExpiryMargin of
// now. The comparison is done in milliseconds, exactly 10s left counts as
// expiring.
func (c *Claims) IsAboutToExpire(now time.Time) bool {
	return c.ExpiresAt*1000-now.UnixMilli() <= ExpiryMargin.Milliseconds()
}

// HasPersonID reports whether the token carried a "custom:person_id" claim.
func (c *Claims) HasPersonID() bool {
	return c.PersonID != ""
}
