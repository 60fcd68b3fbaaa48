// Package shipment checks shipment numbers against the system of record.
package shipment

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"certintake/internal/config"
	"certintake/internal/port"
	"certintake/internal/secrets"
)

type httpVerifier struct {
	baseURL string
	client  *http.Client
	secrets port.SecretStore
	issuer  string
	ttl     time.Duration
	now     func() time.Time
}

// NewHTTPVerifier creates a ShipmentVerifier that calls GET {base}/shipments/{id}.
// Requests carry a short-lived HS256 bearer token signed with the shipment API key.
func NewHTTPVerifier(cfg config.ShipmentConfig, store port.SecretStore, client *http.Client) port.ShipmentVerifier {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &httpVerifier{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		secrets: store,
		issuer:  cfg.TokenIssuer,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (v *httpVerifier) Exists(ctx context.Context, shipmentID string) (bool, error) {
	token, err := v.token(ctx)
	if err != nil {
		return false, fmt.Errorf("shipment.Exists: %w", err)
	}

	endpoint := fmt.Sprintf("%s/shipments/%s", v.baseURL, url.PathEscape(shipmentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("shipment.Exists: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("shipment.Exists: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("shipment.Exists: unexpected status %d for %s", resp.StatusCode, shipmentID)
	}
}

func (v *httpVerifier) token(ctx context.Context) (string, error) {
	key, err := v.secrets.Get(ctx, secrets.ShipmentAPIKey)
	if err != nil {
		return "", err
	}
	now := v.now()
	claims := jwt.RegisteredClaims{
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", fmt.Errorf("signing service token: %w", err)
	}
	return signed, nil
}

type acceptAllVerifier struct{}

// NewAcceptAllVerifier creates a ShipmentVerifier that accepts every shipment.
// It is used when no system of record is configured.
func NewAcceptAllVerifier() port.ShipmentVerifier {
	log.Printf("shipment: no verifier base URL configured, every shipment number will be accepted")
	return acceptAllVerifier{}
}

func (acceptAllVerifier) Exists(_ context.Context, _ string) (bool, error) {
	return true, nil
}
