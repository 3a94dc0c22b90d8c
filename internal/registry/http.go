package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"wallet-chat/go-core/internal/contracts"
)

const (
	keysPath        = "/v1/keys/"
	maxResponseSize = 64 << 10
	DefaultTimeout  = 10 * time.Second
)

// keyDocument is the wire form of a published key.
type keyDocument struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
}

// HTTPRegistry talks to a key directory over HTTP:
//
//	GET /v1/keys/{address}  -> 200 keyDocument | 404
//	PUT /v1/keys/{address}  <- keyDocument
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRegistry returns a client for baseURL. A nil client gets one with
// DefaultTimeout.
func NewHTTPRegistry(baseURL string, client *http.Client) (*HTTPRegistry, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, contracts.WrapCategorizedError(contracts.ErrorCategoryValidation,
			fmt.Errorf("invalid registry url %q", baseURL))
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPRegistry{baseURL: strings.TrimRight(u.String(), "/"), client: client}, nil
}

func (r *HTTPRegistry) LookupPublicKey(ctx context.Context, peer string) ([]byte, bool, error) {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return nil, false, ErrInvalidAddress
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.keyURL(peer), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, false, transportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode != http.StatusOK:
		return nil, false, statusError(resp)
	}
	var doc keyDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&doc); err != nil {
		return nil, false, contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork,
			fmt.Errorf("decode registry response: %w", err))
	}
	key, err := base58.Decode(doc.PublicKey)
	if err != nil || len(key) != publicKeySize {
		return nil, false, ErrInvalidKey
	}
	return key, true, nil
}

func (r *HTTPRegistry) PublishPublicKey(ctx context.Context, peer string, key []byte) error {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return ErrInvalidAddress
	}
	if len(key) != publicKeySize {
		return ErrInvalidKey
	}
	body, err := json.Marshal(keyDocument{Address: peer, PublicKey: base58.Encode(key)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.keyURL(peer), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	return nil
}

func (r *HTTPRegistry) keyURL(peer string) string {
	return r.baseURL + keysPath + url.PathEscape(peer)
}

func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryTimeout, err)
	}
	return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, err)
}

func statusError(resp *http.Response) error {
	category := contracts.ErrorCategoryNetwork
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		category = contracts.ErrorCategoryValidation
	}
	return contracts.WrapCategorizedError(category, fmt.Errorf("registry returned %s", resp.Status))
}
