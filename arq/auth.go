package arq

import (
	"strings"

	"github.com/drunlade/go-hostarq/digest"
)

// authMethod is the method of an explicit /AUTH exchange.
const authMethod = "AUTH"

// HA1 derives the long-term secret of a client/server pair.
func HA1(client, server, password string) string {
	return digest.SumHex(strings.ToUpper(client), strings.ToUpper(server), password)
}

// HA2 derives the request digest from method and resource.
func HA2(method, path string) string {
	return digest.SumHex(method, path)
}

func response(ha1 string, parts ...string) string {
	return digest.Encode(digest.Keyed(ha1, parts...))
}

// Challenge is the material of one challenge-response exchange. It lives
// only until the exchange completes or fails.
type Challenge struct {
	Remote string
	Local  string
	Method string
	Path   string

	HA1    string
	HA2    string
	Nonce  string
	CNonce string
}

// BeginChallenge starts an exchange on the server side. A missing
// credential for the pair refuses authorization.
func BeginChallenge(creds Credentials, remote, local, method, path string) (*Challenge, error) {
	ha1, ok := lookup(creds, remote, local)
	if !ok {
		return nil, NewError(ErrAuth, "no credential for "+strings.ToUpper(remote))
	}
	nonce, err := digest.Nonce()
	if err != nil {
		return nil, WrapError(ErrResource, "nonce", err)
	}
	return &Challenge{
		Remote: remote,
		Local:  local,
		Method: method,
		Path:   path,
		HA1:    ha1,
		HA2:    HA2(method, path),
		Nonce:  nonce,
	}, nil
}

// VerifyA2 checks the client response to the nonce and returns the A3
// response proving the server knows the secret too.
func (c *Challenge) VerifyA2(resp, cnonce string) (string, error) {
	if len(resp) != digest.EncodedSize || len(cnonce) != digest.EncodedNonceSize {
		return "", NewError(ErrAuth, "malformed /A2")
	}
	want := response(c.HA1, c.Nonce, cnonce, c.HA2)
	if !digest.Equal(resp, want) {
		return "", NewError(ErrAuth, "/A2 response mismatch")
	}
	c.CNonce = cnonce
	return response(c.HA1, cnonce, c.Nonce, c.HA2), nil
}

// AnswerChallenge answers a server nonce on the client side and returns the
// exchange together with the A2 response.
func AnswerChallenge(creds Credentials, remote, local, method, path, nonce string) (*Challenge, string, error) {
	if len(nonce) != digest.EncodedNonceSize {
		return nil, "", NewError(ErrAuth, "malformed /A1")
	}
	ha1, ok := lookup(creds, remote, local)
	if !ok {
		return nil, "", NewError(ErrAuth, "no credential for "+strings.ToUpper(remote))
	}
	cnonce, err := digest.Nonce()
	if err != nil {
		return nil, "", WrapError(ErrResource, "nonce", err)
	}
	c := &Challenge{
		Remote: remote,
		Local:  local,
		Method: method,
		Path:   path,
		HA1:    ha1,
		HA2:    HA2(method, path),
		Nonce:  nonce,
		CNonce: cnonce,
	}
	return c, response(ha1, nonce, cnonce, c.HA2), nil
}

// VerifyA3 checks the final server response on the client side.
func (c *Challenge) VerifyA3(resp string) error {
	if len(resp) != digest.EncodedSize {
		return NewError(ErrAuth, "malformed /A3")
	}
	if !digest.Equal(resp, response(c.HA1, c.CNonce, c.Nonce, c.HA2)) {
		return NewError(ErrAuth, "/A3 response mismatch")
	}
	return nil
}

func lookup(creds Credentials, remote, local string) (string, bool) {
	if creds == nil {
		return "", false
	}
	return creds.Lookup(remote, local)
}
