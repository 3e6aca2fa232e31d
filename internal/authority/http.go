package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"authmsg/internal/domain"
)

// HTTP is the client for the authority API.
type HTTP struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a client for base. A nil client selects http.DefaultClient.
func NewHTTP(base string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{Base: strings.TrimRight(base, "/"), HTTP: client}
}

type bindRequest struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes,omitempty"`
}

type identityRequest struct {
	KeyToken  domain.KeyToken `json:"key_token"`
	PublicKey []byte          `json:"public_key"`
}

// Bind exchanges application credentials for an access credential.
func (c *HTTP) Bind(ctx context.Context, clientID, clientSecret string, scopes []string) (domain.AccessCredential, error) {
	var out domain.AccessCredential
	err := c.post(ctx, "/v1/bind", "", bindRequest{ClientID: clientID, ClientSecret: clientSecret, Scopes: scopes}, &out)
	return c.withEndpoint(out), err
}

// Rebind renews previous, sending its token as the bearer.
func (c *HTTP) Rebind(ctx context.Context, previous domain.AccessCredential) (domain.AccessCredential, error) {
	var out domain.AccessCredential
	err := c.post(ctx, "/v1/rebind", previous.Token, nil, &out)
	return c.withEndpoint(out), err
}

// RequestVerification asks the authority to approve req.UserID.
func (c *HTTP) RequestVerification(
	ctx context.Context,
	credential domain.AccessCredential,
	req domain.VerificationRequest,
) (domain.VerificationResult, error) {
	var out domain.VerificationResult
	err := c.post(ctx, "/v1/verify", credential.Token, req, &out)
	return out, err
}

// RegisterIdentityKey redeems token for public. The token is single-use.
func (c *HTTP) RegisterIdentityKey(
	ctx context.Context,
	token domain.KeyToken,
	public domain.X25519Public,
) (domain.IdentityGrant, error) {
	var out domain.IdentityGrant
	err := c.post(ctx, "/v1/identity", "", identityRequest{KeyToken: token, PublicKey: public.Slice()}, &out)
	return out, err
}

func (c *HTTP) withEndpoint(cred domain.AccessCredential) domain.AccessCredential {
	if cred.Token != "" && cred.Endpoint == "" {
		cred.Endpoint = c.Base
	}
	return cred
}

func (c *HTTP) post(ctx context.Context, path, bearer string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: post %s: %v", domain.ErrTransientNetwork, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var eb errorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil && !errors.Is(err, io.EOF) {
			eb.Message = resp.Status
		}
		return decodeError(resp.StatusCode, eb)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var (
	_ domain.Authority      = (*HTTP)(nil)
	_ domain.IdentityIssuer = (*HTTP)(nil)
)
