package notifier

import (
	"context"
	"fmt"
)

// StaticDirectory resolves providers from a configured map, falling
// back to <provider-id>@<default-domain>. It stands in for a real
// directory service client.
type StaticDirectory struct {
	providers     map[string]string
	defaultDomain string
}

func NewStaticDirectory(providers map[string]string, defaultDomain string) *StaticDirectory {
	return &StaticDirectory{providers: providers, defaultDomain: defaultDomain}
}

func (d *StaticDirectory) ProviderEmail(ctx context.Context, providerID string) (string, error) {
	if addr, ok := d.providers[providerID]; ok {
		return addr, nil
	}
	if d.defaultDomain == "" {
		return "", fmt.Errorf("no address on file for provider %s", providerID)
	}
	return fmt.Sprintf("%s@%s", providerID, d.defaultDomain), nil
}
