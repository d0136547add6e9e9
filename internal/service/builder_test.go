package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"keyforge/internal/models"
)

func TestBuilderCreate(t *testing.T) {
	manager, licences, products, _, _ := newTestManager()
	productID := uuid.New()
	clientID := uuid.New()

	products.On("GetProduct", mock.Anything, productID).Return(&models.Product{ID: productID}, nil)
	licences.On("CreateLicence", mock.Anything, mock.MatchedBy(func(l *models.Licence) bool {
		return l.ProductID == productID &&
			l.ClientID != nil && *l.ClientID == clientID &&
			l.DurationDays != nil && *l.DurationDays == 365 &&
			l.Metadata["tier"] == "gold"
	})).Return(nil)

	licence, err := manager.Make().
		Product(productID).
		Client(clientID).
		Duration(365).
		Metadata(map[string]interface{}{"tier": "gold"}).
		Create(context.Background())

	assert.NoError(t, err)
	assert.NotNil(t, licence)
	licences.AssertExpectations(t)
}

func TestBuilderValuesDoNotShareState(t *testing.T) {
	manager, _, _, _, _ := newTestManager()
	base := manager.Make().Duration(30)

	yearly := base.Duration(365)

	assert.Equal(t, 30, *base.params.DurationDays)
	assert.Equal(t, 365, *yearly.params.DurationDays)
}

func TestBuilderMetadataMerges(t *testing.T) {
	manager, _, _, _, _ := newTestManager()

	base := manager.Make().Metadata(map[string]interface{}{"tier": "silver", "seats": 5})
	upgraded := base.Metadata(map[string]interface{}{"tier": "gold"})

	assert.Equal(t, "gold", upgraded.params.Metadata["tier"])
	assert.Equal(t, 5, upgraded.params.Metadata["seats"])

	// the earlier builder value is untouched by the merge
	assert.Equal(t, "silver", base.params.Metadata["tier"])
}
