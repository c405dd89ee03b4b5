package store

import (
	"context"
)

// Settings keys for the stored network credentials. A single SSID/password
// pair is all the node keeps; an empty SSID means unprovisioned.
const (
	KeyWifiSSID     = "wifi.ssid"
	KeyWifiPassword = "wifi.password"
)

// Credentials is the node's stored network join material.
type Credentials struct {
	SSID     string
	Password string
}

// Empty reports whether the node is unprovisioned.
func (c Credentials) Empty() bool {
	return c.SSID == ""
}

// LoadCredentials returns the stored credentials. Missing keys yield empty
// strings, so an unprovisioned node loads the empty sentinel without error.
func (s *Store) LoadCredentials(ctx context.Context) (Credentials, error) {
	values, err := s.LoadSettings(ctx, KeyWifiSSID, KeyWifiPassword)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		SSID:     values[KeyWifiSSID],
		Password: values[KeyWifiPassword],
	}, nil
}

// SaveCredentials durably persists the credential pair. Callers restart the
// controller immediately after a successful save, so durability before
// return is part of the contract.
func (s *Store) SaveCredentials(ctx context.Context, creds Credentials) error {
	return s.SaveSettings(ctx, map[string]string{
		KeyWifiSSID:     creds.SSID,
		KeyWifiPassword: creds.Password,
	})
}

// ClearCredentials resets the node to the unprovisioned sentinel. Idempotent.
func (s *Store) ClearCredentials(ctx context.Context) error {
	return s.DeleteSettings(ctx, KeyWifiSSID, KeyWifiPassword)
}
