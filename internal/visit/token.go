package visit

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
)

// TokenIssuer mints session tokens and binds the scanner-facing artifact.
// Tokens are opaque: nothing in the lifecycle parses their structure. The
// issuer is NOT responsible for uniqueness; the store's unique constraint
// is, with the lifecycle regenerating on conflict.
type TokenIssuer interface {
	Generate() string
	Bind(v *Visit, hostName string) Artifact
}

// Artifact is the encoded bundle a checkpoint scanner renders and reads
// back. Display fields are a convenience for the reception screen; the
// token is the only field the backend trusts.
type Artifact struct {
	Token   string `json:"token"`
	Visitor string `json:"visitor"`
	Company string `json:"company,omitempty"`
	Host    string `json:"host,omitempty"`
	Purpose string `json:"purpose,omitempty"`
}

// Encode renders the artifact as a base64url JSON bundle, the payload a QR
// code carries.
func (a Artifact) Encode() string {
	raw, _ := json.Marshal(a)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// RandomTokenIssuer mints 128-bit hex tokens from crypto/rand.
type RandomTokenIssuer struct{}

func NewTokenIssuer() RandomTokenIssuer { return RandomTokenIssuer{} }

func (RandomTokenIssuer) Generate() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process has no entropy source at
		// all; nothing sensible can continue.
		panic("visit: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

func (RandomTokenIssuer) Bind(v *Visit, hostName string) Artifact {
	return Artifact{
		Token:   v.SessionToken,
		Visitor: v.VisitorName,
		Company: v.VisitorCompany,
		Host:    hostName,
		Purpose: v.Purpose,
	}
}

// ExtractToken recovers a session token from whatever a checkpoint scanner
// hands over: the encoded artifact bundle, a bare token string, or a URL
// carrying the token as a query parameter or trailing path segment.
func ExtractToken(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}

	if raw, err := base64.RawURLEncoding.DecodeString(input); err == nil {
		var a Artifact
		if json.Unmarshal(raw, &a) == nil && a.Token != "" {
			return a.Token
		}
	}

	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		if u, err := url.Parse(input); err == nil {
			if tok := u.Query().Get("token"); tok != "" {
				return tok
			}
			if segs := strings.Split(strings.Trim(u.Path, "/"), "/"); len(segs) > 0 {
				if tok := segs[len(segs)-1]; tok != "" {
					return tok
				}
			}
		}
	}

	return input
}
