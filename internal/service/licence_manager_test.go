package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"keyforge/internal/models"
	"keyforge/internal/store"
)

// MockLicenceStore is a mock implementation of store.LicenceStore
type MockLicenceStore struct {
	mock.Mock
}

func (m *MockLicenceStore) CreateLicence(ctx context.Context, licence *models.Licence) error {
	args := m.Called(ctx, licence)
	return args.Error(0)
}

func (m *MockLicenceStore) GetLicence(ctx context.Context, id uuid.UUID) (*models.Licence, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Licence), args.Error(1)
}

func (m *MockLicenceStore) GetLicenceByKey(ctx context.Context, key string) (*models.Licence, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Licence), args.Error(1)
}

func (m *MockLicenceStore) GetLicenceByRefid(ctx context.Context, refid string) (*models.Licence, error) {
	args := m.Called(ctx, refid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Licence), args.Error(1)
}

func (m *MockLicenceStore) ListLicences(ctx context.Context, clientID *uuid.UUID, pagination models.PaginationParams) ([]models.Licence, int, error) {
	args := m.Called(ctx, clientID, pagination)
	return args.Get(0).([]models.Licence), args.Int(1), args.Error(2)
}

func (m *MockLicenceStore) ActivateLicence(ctx context.Context, id uuid.UUID, clientID uuid.UUID, activatedAt time.Time, expiresAt *time.Time) error {
	args := m.Called(ctx, id, clientID, activatedAt, expiresAt)
	return args.Error(0)
}

func (m *MockLicenceStore) RevokeLicence(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockLicenceStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *MockLicenceStore) ListExpiring(ctx context.Context, now time.Time, days int) ([]models.Licence, error) {
	args := m.Called(ctx, now, days)
	return args.Get(0).([]models.Licence), args.Error(1)
}

func (m *MockLicenceStore) SoftDeleteLicence(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockProductStore is a mock implementation of store.ProductStore
type MockProductStore struct {
	mock.Mock
}

func (m *MockProductStore) CreateProduct(ctx context.Context, product *models.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductStore) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductStore) ListProducts(ctx context.Context, pagination models.PaginationParams) ([]models.Product, int, error) {
	args := m.Called(ctx, pagination)
	return args.Get(0).([]models.Product), args.Int(1), args.Error(2)
}

func (m *MockProductStore) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockClientStore is a mock implementation of store.ClientStore
type MockClientStore struct {
	mock.Mock
}

func (m *MockClientStore) CreateClient(ctx context.Context, client *models.Client) error {
	args := m.Called(ctx, client)
	return args.Error(0)
}

func (m *MockClientStore) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

func (m *MockClientStore) ListClients(ctx context.Context, ownerID *uuid.UUID, pagination models.PaginationParams) ([]models.Client, int, error) {
	args := m.Called(ctx, ownerID, pagination)
	return args.Get(0).([]models.Client), args.Int(1), args.Error(2)
}

func (m *MockClientStore) DeleteClient(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// recordingMailer captures sent mail. Activation alerts are dispatched on a
// goroutine, so delivery is signalled through a channel.
type recordingMailer struct {
	alerts   chan ActivationAlert
	warnings []ExpirationWarning
	fail     bool
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{alerts: make(chan ActivationAlert, 8)}
}

func (r *recordingMailer) SendActivationAlert(ctx context.Context, alert ActivationAlert) error {
	if r.fail {
		return errors.New("smtp unavailable")
	}
	r.alerts <- alert
	return nil
}

func (r *recordingMailer) SendExpirationWarning(ctx context.Context, warning ExpirationWarning) error {
	if r.fail {
		return errors.New("smtp unavailable")
	}
	r.warnings = append(r.warnings, warning)
	return nil
}

func (r *recordingMailer) waitForAlert(t *testing.T) ActivationAlert {
	t.Helper()
	select {
	case alert := <-r.alerts:
		return alert
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for activation alert")
		return ActivationAlert{}
	}
}

func newTestManager() (*LicenceManager, *MockLicenceStore, *MockProductStore, *MockClientStore, *recordingMailer) {
	licences := new(MockLicenceStore)
	products := new(MockProductStore)
	clients := new(MockClientStore)
	mailer := newRecordingMailer()
	manager := NewLicenceManager(licences, products, clients, mailer, "", "")
	return manager, licences, products, clients, mailer
}

func TestCreateLicence(t *testing.T) {
	ctx := context.Background()

	t.Run("Defaults", func(t *testing.T) {
		manager, licences, products, _, _ := newTestManager()
		productID := uuid.New()
		products.On("GetProduct", mock.Anything, productID).Return(&models.Product{ID: productID, Name: "Widget"}, nil)
		licences.On("CreateLicence", mock.Anything, mock.MatchedBy(func(l *models.Licence) bool {
			return l.ProductID == productID &&
				l.Status == models.LicenceStatusPending &&
				keyPattern.MatchString(l.Key) &&
				len(l.Refid) == 16 &&
				l.ClientID == nil &&
				l.ActivatedAt == nil &&
				l.ExpiresAt == nil
		})).Return(nil)

		licence, err := manager.Create(ctx, CreateLicenceParams{ProductID: productID})
		assert.NoError(t, err)
		assert.NotNil(t, licence)
		assert.Equal(t, models.LicenceStatusPending, licence.Status)
		licences.AssertExpectations(t)
	})

	t.Run("CallerSuppliedKeyAndStatus", func(t *testing.T) {
		manager, licences, products, _, _ := newTestManager()
		productID := uuid.New()
		products.On("GetProduct", mock.Anything, productID).Return(&models.Product{ID: productID}, nil)
		licences.On("CreateLicence", mock.Anything, mock.MatchedBy(func(l *models.Licence) bool {
			return l.Key == "LEGACY-IMPORTED-KEY" && l.Status == models.LicenceStatusActive
		})).Return(nil)

		licence, err := manager.Create(ctx, CreateLicenceParams{
			ProductID: productID,
			Key:       "LEGACY-IMPORTED-KEY",
			Status:    models.LicenceStatusActive,
		})
		assert.NoError(t, err)
		assert.Equal(t, "LEGACY-IMPORTED-KEY", licence.Key)
	})

	t.Run("CollectsAllValidationErrors", func(t *testing.T) {
		manager, licences, _, _, _ := newTestManager()
		badDuration := 0

		_, err := manager.Create(ctx, CreateLicenceParams{
			DurationDays: &badDuration,
			Status:       models.LicenceStatus("bogus"),
		})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "product_id")
		assert.Contains(t, verr.Fields, "duration_days")
		assert.Contains(t, verr.Fields, "status")
		licences.AssertNotCalled(t, "CreateLicence", mock.Anything, mock.Anything)
	})

	t.Run("UnknownProduct", func(t *testing.T) {
		manager, _, products, _, _ := newTestManager()
		productID := uuid.New()
		products.On("GetProduct", mock.Anything, productID).Return(nil, store.ErrNotFound)

		_, err := manager.Create(ctx, CreateLicenceParams{ProductID: productID})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "product_id")
	})

	t.Run("DuplicateKeyPropagates", func(t *testing.T) {
		manager, licences, products, _, _ := newTestManager()
		productID := uuid.New()
		products.On("GetProduct", mock.Anything, productID).Return(&models.Product{ID: productID}, nil)
		licences.On("CreateLicence", mock.Anything, mock.Anything).Return(store.ErrDuplicate)

		_, err := manager.Create(ctx, CreateLicenceParams{ProductID: productID})
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})
}

func TestActivateLicence(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		manager, licences, products, clients, mailer := newTestManager()
		duration := 30
		licenceID := uuid.New()
		productID := uuid.New()
		clientID := uuid.New()
		pending := &models.Licence{
			ID:           licenceID,
			Refid:        "abcdefgh12345678",
			Key:          "AAAAAAAA-BBBBBBBB-CCCCCCCC-DDDDDDDD",
			ProductID:    productID,
			DurationDays: &duration,
			Status:       models.LicenceStatusPending,
		}
		client := &models.Client{ID: clientID, Name: "Acme", Email: "ops@acme.test"}

		licences.On("GetLicence", mock.Anything, licenceID).Return(pending, nil)
		clients.On("GetClient", mock.Anything, clientID).Return(client, nil)
		products.On("GetProduct", mock.Anything, productID).Return(&models.Product{ID: productID, Name: "Widget Pro"}, nil)
		licences.On("ActivateLicence", mock.Anything, licenceID, clientID, mock.Anything, mock.MatchedBy(func(expiresAt *time.Time) bool {
			return expiresAt != nil
		})).Return(nil)

		before := time.Now().UTC()
		licence, err := manager.Activate(ctx, licenceID, clientID)
		assert.NoError(t, err)
		assert.Equal(t, models.LicenceStatusActive, licence.Status)
		assert.NotNil(t, licence.ActivatedAt)
		assert.NotNil(t, licence.ExpiresAt)
		assert.Equal(t, clientID, *licence.ClientID)

		// expiry = activation + duration_days
		expected := licence.ActivatedAt.AddDate(0, 0, duration)
		assert.Equal(t, expected, *licence.ExpiresAt)
		assert.False(t, licence.ActivatedAt.Before(before))

		alert := mailer.waitForAlert(t)
		assert.Equal(t, "Acme", alert.Name)
		assert.Equal(t, "ops@acme.test", alert.Email)
		assert.Equal(t, pending.Key, alert.Key)
		assert.Equal(t, "Widget Pro", alert.ProductName)
		assert.Equal(t, licence.ExpiresAt.Format("2006-01-02"), alert.ExpiresAt)
		assert.Equal(t, "client/licenses", alert.ManageURL)
		licences.AssertExpectations(t)
	})

	t.Run("NoDurationNeverExpires", func(t *testing.T) {
		manager, licences, products, clients, mailer := newTestManager()
		licenceID := uuid.New()
		clientID := uuid.New()
		pending := &models.Licence{
			ID:        licenceID,
			Key:       "AAAAAAAA-BBBBBBBB-CCCCCCCC-DDDDDDDD",
			ProductID: uuid.New(),
			Status:    models.LicenceStatusPending,
		}

		licences.On("GetLicence", mock.Anything, licenceID).Return(pending, nil)
		clients.On("GetClient", mock.Anything, clientID).Return(&models.Client{ID: clientID, Name: "Acme", Email: "ops@acme.test"}, nil)
		products.On("GetProduct", mock.Anything, mock.Anything).Return(nil, store.ErrNotFound)
		licences.On("ActivateLicence", mock.Anything, licenceID, clientID, mock.Anything, mock.MatchedBy(func(expiresAt *time.Time) bool {
			return expiresAt == nil
		})).Return(nil)

		licence, err := manager.Activate(ctx, licenceID, clientID)
		assert.NoError(t, err)
		assert.Nil(t, licence.ExpiresAt)

		alert := mailer.waitForAlert(t)
		assert.Equal(t, "Never", alert.ExpiresAt)
		assert.Equal(t, "N/A", alert.ProductName)
	})

	t.Run("NotPending", func(t *testing.T) {
		manager, licences, _, clients, _ := newTestManager()
		licenceID := uuid.New()
		clientID := uuid.New()
		active := &models.Licence{ID: licenceID, Status: models.LicenceStatusActive}

		licences.On("GetLicence", mock.Anything, licenceID).Return(active, nil)
		clients.On("GetClient", mock.Anything, clientID).Return(&models.Client{ID: clientID}, nil)

		_, err := manager.Activate(ctx, licenceID, clientID)
		assert.ErrorIs(t, err, ErrNotActivatable)
		licences.AssertNotCalled(t, "ActivateLicence", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("LostActivationRace", func(t *testing.T) {
		manager, licences, _, clients, _ := newTestManager()
		licenceID := uuid.New()
		clientID := uuid.New()
		pending := &models.Licence{ID: licenceID, Status: models.LicenceStatusPending}

		licences.On("GetLicence", mock.Anything, licenceID).Return(pending, nil)
		clients.On("GetClient", mock.Anything, clientID).Return(&models.Client{ID: clientID}, nil)
		licences.On("ActivateLicence", mock.Anything, licenceID, clientID, mock.Anything, mock.Anything).Return(store.ErrConflict)

		_, err := manager.Activate(ctx, licenceID, clientID)
		assert.ErrorIs(t, err, ErrNotActivatable)
	})

	t.Run("UnknownClient", func(t *testing.T) {
		manager, licences, _, clients, _ := newTestManager()
		licenceID := uuid.New()
		clientID := uuid.New()

		licences.On("GetLicence", mock.Anything, licenceID).Return(&models.Licence{ID: licenceID, Status: models.LicenceStatusPending}, nil)
		clients.On("GetClient", mock.Anything, clientID).Return(nil, store.ErrNotFound)

		_, err := manager.Activate(ctx, licenceID, clientID)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "client_id")
	})

	t.Run("ClientWithoutEmailSkipsMail", func(t *testing.T) {
		manager, licences, _, clients, mailer := newTestManager()
		licenceID := uuid.New()
		clientID := uuid.New()
		pending := &models.Licence{ID: licenceID, Status: models.LicenceStatusPending, ProductID: uuid.New()}

		licences.On("GetLicence", mock.Anything, licenceID).Return(pending, nil)
		clients.On("GetClient", mock.Anything, clientID).Return(&models.Client{ID: clientID, Name: "NoMail"}, nil)
		licences.On("ActivateLicence", mock.Anything, licenceID, clientID, mock.Anything, mock.Anything).Return(nil)

		_, err := manager.Activate(ctx, licenceID, clientID)
		assert.NoError(t, err)

		select {
		case alert := <-mailer.alerts:
			t.Fatalf("unexpected activation alert sent: %+v", alert)
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestVerifyLicence(t *testing.T) {
	ctx := context.Background()
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)

	tests := []struct {
		name    string
		licence *models.Licence
		found   bool
	}{
		{"active without expiry", &models.Licence{Status: models.LicenceStatusActive}, true},
		{"active with future expiry", &models.Licence{Status: models.LicenceStatusActive, ExpiresAt: &future}, true},
		{"date expired but unswept", &models.Licence{Status: models.LicenceStatusActive, ExpiresAt: &past}, false},
		{"pending", &models.Licence{Status: models.LicenceStatusPending}, false},
		{"revoked", &models.Licence{Status: models.LicenceStatusRevoked}, false},
		{"expired", &models.Licence{Status: models.LicenceStatusExpired}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, licences, _, _, _ := newTestManager()
			tt.licence.Key = "AAAAAAAA-BBBBBBBB-CCCCCCCC-DDDDDDDD"
			licences.On("GetLicenceByKey", mock.Anything, tt.licence.Key).Return(tt.licence, nil)

			licence, err := manager.Verify(ctx, tt.licence.Key)
			assert.NoError(t, err)
			if tt.found {
				assert.NotNil(t, licence)
			} else {
				assert.Nil(t, licence)
			}
		})
	}

	t.Run("MissingKeyIsNotAnError", func(t *testing.T) {
		manager, licences, _, _, _ := newTestManager()
		licences.On("GetLicenceByKey", mock.Anything, "NOPE").Return(nil, store.ErrNotFound)

		licence, err := manager.Verify(ctx, "NOPE")
		assert.NoError(t, err)
		assert.Nil(t, licence)
	})

	t.Run("StoreFailurePropagates", func(t *testing.T) {
		manager, licences, _, _, _ := newTestManager()
		licences.On("GetLicenceByKey", mock.Anything, "KEY").Return(nil, errors.New("connection reset"))

		_, err := manager.Verify(ctx, "KEY")
		assert.Error(t, err)
	})
}

func TestFindByRefid(t *testing.T) {
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		manager, licences, _, _, _ := newTestManager()
		expected := &models.Licence{Refid: "abcdefgh12345678"}
		licences.On("GetLicenceByRefid", mock.Anything, expected.Refid).Return(expected, nil)

		licence, err := manager.FindByRefid(ctx, expected.Refid)
		assert.NoError(t, err)
		assert.Equal(t, expected, licence)
	})

	t.Run("AbsenceIsNil", func(t *testing.T) {
		manager, licences, _, _, _ := newTestManager()
		licences.On("GetLicenceByRefid", mock.Anything, "missing").Return(nil, store.ErrNotFound)

		licence, err := manager.FindByRefid(ctx, "missing")
		assert.NoError(t, err)
		assert.Nil(t, licence)
	})
}

func TestRevokeLicence(t *testing.T) {
	ctx := context.Background()

	t.Run("Revoked", func(t *testing.T) {
		manager, licences, _, _, _ := newTestManager()
		id := uuid.New()
		licences.On("RevokeLicence", mock.Anything, id).Return(true, nil)

		revoked, err := manager.Revoke(ctx, id)
		assert.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("MissingIsFalseNotError", func(t *testing.T) {
		manager, licences, _, _, _ := newTestManager()
		id := uuid.New()
		licences.On("RevokeLicence", mock.Anything, id).Return(false, nil)

		revoked, err := manager.Revoke(ctx, id)
		assert.NoError(t, err)
		assert.False(t, revoked)
	})
}

func TestNotifyExpiring(t *testing.T) {
	ctx := context.Background()

	t.Run("SendsWarningsAndSkipsFailures", func(t *testing.T) {
		manager, licences, _, clients, mailer := newTestManager()
		clientA := uuid.New()
		clientB := uuid.New()
		expiresSoon := time.Now().UTC().Add(5 * 24 * time.Hour)

		expiring := []models.Licence{
			{ID: uuid.New(), Key: "KEY-A", ClientID: &clientA, ExpiresAt: &expiresSoon},
			{ID: uuid.New(), Key: "KEY-B", ClientID: &clientB, ExpiresAt: &expiresSoon},
			{ID: uuid.New(), Key: "KEY-C", ExpiresAt: &expiresSoon}, // never bound, skipped
		}

		licences.On("ListExpiring", mock.Anything, mock.Anything, 30).Return(expiring, nil)
		clients.On("GetClient", mock.Anything, clientA).Return(&models.Client{ID: clientA, Name: "A", Email: "a@test"}, nil)
		clients.On("GetClient", mock.Anything, clientB).Return(nil, errors.New("connection reset"))

		sent, err := manager.NotifyExpiring(ctx, 30)
		assert.NoError(t, err)
		assert.Equal(t, 1, sent)
		assert.Len(t, mailer.warnings, 1)

		warning := mailer.warnings[0]
		assert.Equal(t, "a@test", warning.Email)
		assert.Equal(t, "KEY-A", warning.Key)
		assert.Equal(t, 5, warning.DaysLeft)
		assert.Equal(t, expiresSoon.Format("2006-01-02"), warning.ExpiresAt)
		assert.Contains(t, warning.RenewURL, "client/licenses/renew/")
	})

	t.Run("MailFailureDoesNotFailTheCall", func(t *testing.T) {
		manager, licences, _, clients, mailer := newTestManager()
		mailer.fail = true
		clientID := uuid.New()
		expiresSoon := time.Now().UTC().Add(48 * time.Hour)

		licences.On("ListExpiring", mock.Anything, mock.Anything, 7).Return([]models.Licence{
			{ID: uuid.New(), Key: "KEY", ClientID: &clientID, ExpiresAt: &expiresSoon},
		}, nil)
		clients.On("GetClient", mock.Anything, clientID).Return(&models.Client{ID: clientID, Email: "x@test"}, nil)

		sent, err := manager.NotifyExpiring(ctx, 7)
		assert.NoError(t, err)
		assert.Equal(t, 0, sent)
	})
}

func TestSweepExpired(t *testing.T) {
	manager, licences, _, _, _ := newTestManager()
	licences.On("SweepExpired", mock.Anything, mock.Anything).Return(3, nil)

	count, err := manager.SweepExpired(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 3, count)
}
