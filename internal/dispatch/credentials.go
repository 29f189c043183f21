package dispatch

import (
	"context"

	"github.com/commercegrid/adsync-api/internal/models"
	"github.com/commercegrid/adsync-api/internal/provider"
)

// StaticCredentialResolver serves one fixed credential set for every binding.
// Single-provider deployments pin credentials in config; multi-binding
// deployments swap in a resolver backed by the secrets service.
type StaticCredentialResolver struct {
	Creds provider.Credentials
}

func (r StaticCredentialResolver) Resolve(_ context.Context, _ models.ProviderBinding) (provider.Credentials, error) {
	return r.Creds, nil
}
