package entitystore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ChainFM/logger"
)

// ArkivStore is the production Store implementation against the Arkiv
// gateway. The gateway exposes entity create and fetch; clone is fetch
// plus re-create with a new expiration, which matches how the chain
// handles copies (a clone is a fresh entity, not a reference).
type ArkivStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewArkivStore creates a gateway-backed store client. Requests are bounded
// by the given timeout; the store is treated as an unreliable remote
// dependency and retries are left to callers.
func NewArkivStore(baseURL, token string, timeout time.Duration) *ArkivStore {
	return &ArkivStore{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type createEntityRequest struct {
	Payload     string `json:"payload"` // base64
	ContentType string `json:"contentType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type createEntityResponse struct {
	EntityKey string `json:"entityKey"`
	TxHash    string `json:"txHash"`
}

type getEntityResponse struct {
	EntityKey   string `json:"entityKey"`
	Payload     string `json:"payload"` // base64
	ContentType string `json:"contentType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

func (s *ArkivStore) Put(ctx context.Context, data []byte, contentType string, expirySeconds int64) (string, string, error) {
	expiry := normalizeExpiry(expirySeconds)

	reqBody, err := json.Marshal(createEntityRequest{
		Payload:     base64.StdEncoding.EncodeToString(data),
		ContentType: contentType,
		ExpiresIn:   expiry,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to encode entity payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/entities", bytes.NewReader(reqBody))
	if err != nil {
		return "", "", fmt.Errorf("failed to build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: create entity: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", "", fmt.Errorf("%w: create entity returned status %d", ErrStoreUnavailable, resp.StatusCode)
	}

	var created createEntityResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", "", fmt.Errorf("%w: decoding create response: %v", ErrStoreUnavailable, err)
	}

	logger.Debug("Entity uploaded",
		logger.String("entityId", created.EntityKey),
		logger.Int("sizeBytes", len(data)),
		logger.String("txId", created.TxHash))
	return created.EntityKey, created.TxHash, nil
}

func (s *ArkivStore) PutText(ctx context.Context, text, contentType string, expirySeconds int64) (string, string, error) {
	return s.Put(ctx, []byte(text), contentType, expirySeconds)
}

func (s *ArkivStore) Get(ctx context.Context, entityID string) ([]byte, error) {
	entity, err := s.fetch(ctx, entityID)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(entity.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding payload of %s: %v", ErrStoreUnavailable, entityID, err)
	}
	return data, nil
}

func (s *ArkivStore) GetText(ctx context.Context, entityID string) (string, error) {
	data, err := s.Get(ctx, entityID)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *ArkivStore) Clone(ctx context.Context, entityID string, newExpirySeconds int64) (string, string, error) {
	entity, err := s.fetch(ctx, entityID)
	if err != nil {
		return "", "", err
	}
	data, err := base64.StdEncoding.DecodeString(entity.Payload)
	if err != nil {
		return "", "", fmt.Errorf("%w: decoding payload of %s: %v", ErrStoreUnavailable, entityID, err)
	}

	cloneID, txID, err := s.Put(ctx, data, entity.ContentType, newExpirySeconds)
	if err != nil {
		return "", "", err
	}

	logger.Info("Entity cloned",
		logger.String("sourceId", entityID),
		logger.String("cloneId", cloneID))
	return cloneID, txID, nil
}

func (s *ArkivStore) fetch(ctx context.Context, entityID string) (*getEntityResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/entities/"+entityID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch entity %s: %v", ErrStoreUnavailable, entityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: fetch entity %s returned status %d: %s",
			ErrStoreUnavailable, entityID, resp.StatusCode, string(body))
	}

	var entity getEntityResponse
	if err := json.NewDecoder(resp.Body).Decode(&entity); err != nil {
		return nil, fmt.Errorf("%w: decoding entity %s: %v", ErrStoreUnavailable, entityID, err)
	}
	return &entity, nil
}
