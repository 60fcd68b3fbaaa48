package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"certintake/internal/domain"
	"certintake/internal/port"
)

// Names of the secrets read by the intake service.
const (
	CCTNotificationAddress = "cct_notification_email_address"
	OpsNotificationAddress = "ops_notification_email_address"
	IntakeAddress          = "intake_email_address"
	ShipmentAPIKey         = "shipment_api_key"
)

// EnvPrefix is prepended to every secret name when read from the environment.
const EnvPrefix = "CERTINTAKE_SECRET"

type envStore struct {
	v *viper.Viper
}

// NewEnvStore creates a SecretStore that reads CERTINTAKE_SECRET_<NAME> variables.
func NewEnvStore() port.SecretStore {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return &envStore{v: v}
}

// NewStaticStore creates a SecretStore backed by fixed values. Environment
// variables still take precedence.
func NewStaticStore(values map[string]string) port.SecretStore {
	s := NewEnvStore().(*envStore)
	for name, value := range values {
		s.v.SetDefault(strings.ToLower(name), value)
	}
	return s
}

func (s *envStore) Get(_ context.Context, name string) (string, error) {
	value := strings.TrimSpace(s.v.GetString(strings.ToLower(name)))
	if value == "" {
		return "", fmt.Errorf("secrets.Get %s: %w", name, domain.ErrSecretNotFound)
	}
	return value, nil
}
