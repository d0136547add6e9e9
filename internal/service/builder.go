package service

import (
	"context"

	"github.com/google/uuid"

	"keyforge/internal/models"
)

// LicenceBuilder is a fluent front for LicenceManager.Create. Every call
// returns a new value, so a partially-built builder can be shared or reused
// without scope leaking between call chains.
type LicenceBuilder struct {
	manager *LicenceManager
	params  CreateLicenceParams
}

func (b LicenceBuilder) Key(key string) LicenceBuilder {
	b.params.Key = key
	return b
}

func (b LicenceBuilder) Product(id uuid.UUID) LicenceBuilder {
	b.params.ProductID = id
	return b
}

func (b LicenceBuilder) Client(id uuid.UUID) LicenceBuilder {
	b.params.ClientID = &id
	return b
}

func (b LicenceBuilder) Duration(days int) LicenceBuilder {
	b.params.DurationDays = &days
	return b
}

func (b LicenceBuilder) Status(status models.LicenceStatus) LicenceBuilder {
	b.params.Status = status
	return b
}

// Metadata merges the given entries into the builder's metadata. Existing
// keys are overwritten; the merge copies so earlier builder values stay
// untouched.
func (b LicenceBuilder) Metadata(metadata map[string]interface{}) LicenceBuilder {
	merged := make(map[string]interface{}, len(b.params.Metadata)+len(metadata))
	for k, v := range b.params.Metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	b.params.Metadata = merged
	return b
}

func (b LicenceBuilder) Create(ctx context.Context) (*models.Licence, error) {
	return b.manager.Create(ctx, b.params)
}
