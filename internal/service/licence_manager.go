package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"keyforge/internal/models"
	"keyforge/internal/store"
)

// LicenceManager orchestrates the licence lifecycle: minting, activation,
// verification and revocation. It is constructed once with its collaborators
// and injected into callers.
type LicenceManager struct {
	licences  store.LicenceStore
	products  store.ProductStore
	clients   store.ClientStore
	mailer    Mailer
	manageURL string
	renewURL  string
}

func NewLicenceManager(licences store.LicenceStore, products store.ProductStore, clients store.ClientStore, mailer Mailer, manageURL, renewURL string) *LicenceManager {
	if manageURL == "" {
		manageURL = "client/licenses"
	}
	if renewURL == "" {
		renewURL = "client/licenses/renew"
	}
	return &LicenceManager{
		licences:  licences,
		products:  products,
		clients:   clients,
		mailer:    mailer,
		manageURL: manageURL,
		renewURL:  renewURL,
	}
}

// Make starts a fluent licence builder bound to this manager.
func (m *LicenceManager) Make() LicenceBuilder {
	return LicenceBuilder{manager: m}
}

type CreateLicenceParams struct {
	ProductID    uuid.UUID
	ClientID     *uuid.UUID
	DurationDays *int
	Key          string
	Status       models.LicenceStatus
	Metadata     map[string]interface{}
}

// Create validates and persists a new licence. All field violations are
// collected into a single ValidationError. Status defaults to pending and a
// key is generated when the caller supplies none; a caller-supplied key is
// trusted as-is.
func (m *LicenceManager) Create(ctx context.Context, params CreateLicenceParams) (*models.Licence, error) {
	verr := NewValidationError()

	if params.ProductID == uuid.Nil {
		verr.Add("product_id", "product_id is required")
	} else if _, err := m.products.GetProduct(ctx, params.ProductID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			verr.Add("product_id", "product does not exist")
		} else {
			return nil, fmt.Errorf("failed to check product: %w", err)
		}
	}

	if params.DurationDays != nil && *params.DurationDays < 1 {
		verr.Add("duration_days", "duration_days must be at least 1")
	}

	if params.Status != "" && !params.Status.Valid() {
		verr.Add("status", "unknown status")
	}

	if verr.HasErrors() {
		return nil, verr
	}

	status := params.Status
	if status == "" {
		status = models.LicenceStatusPending
	}

	key := params.Key
	if key == "" {
		var err error
		key, err = GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate licence key: %w", err)
		}
	}

	refid, err := GenerateRefid()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refid: %w", err)
	}

	now := time.Now().UTC()
	licence := &models.Licence{
		ID:           uuid.New(),
		Refid:        refid,
		Key:          key,
		ProductID:    params.ProductID,
		ClientID:     params.ClientID,
		DurationDays: params.DurationDays,
		Status:       status,
		Metadata:     params.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.licences.CreateLicence(ctx, licence); err != nil {
		return nil, err
	}

	slog.Info("Licence created", "refid", licence.Refid, "product_id", licence.ProductID, "status", licence.Status)

	return licence, nil
}

// Activate binds a pending licence to a client and starts its validity
// clock. The expiry date is computed from duration_days at the instant of
// activation; licences without a duration never expire by date. The
// activation alert mail is dispatched best-effort and never fails the call.
func (m *LicenceManager) Activate(ctx context.Context, licenceID uuid.UUID, clientID uuid.UUID) (*models.Licence, error) {
	licence, err := m.licences.GetLicence(ctx, licenceID)
	if err != nil {
		return nil, err
	}

	client, err := m.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			verr := NewValidationError()
			verr.Add("client_id", "client does not exist")
			return nil, verr
		}
		return nil, fmt.Errorf("failed to check client: %w", err)
	}

	if !licence.IsPending() {
		return nil, ErrNotActivatable
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if licence.DurationDays != nil {
		exp := now.AddDate(0, 0, *licence.DurationDays)
		expiresAt = &exp
	}

	if err := m.licences.ActivateLicence(ctx, licence.ID, client.ID, now, expiresAt); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrNotActivatable
		}
		return nil, err
	}

	licence.ClientID = &client.ID
	licence.Status = models.LicenceStatusActive
	licence.ActivatedAt = &now
	licence.ExpiresAt = expiresAt
	licence.UpdatedAt = now

	slog.Info("Licence activated", "refid", licence.Refid, "client_id", client.ID, "expires_at", expiresAt)

	if client.Email != "" {
		m.dispatchActivationAlert(licence, client)
	}

	return licence, nil
}

func (m *LicenceManager) dispatchActivationAlert(licence *models.Licence, client *models.Client) {
	expires := "Never"
	if licence.ExpiresAt != nil {
		expires = licence.ExpiresAt.Format("2006-01-02")
	}

	productName := "N/A"
	if product, err := m.products.GetProduct(context.Background(), licence.ProductID); err == nil {
		productName = product.Name
	}

	alert := ActivationAlert{
		Name:        client.Name,
		Email:       client.Email,
		Key:         licence.Key,
		ExpiresAt:   expires,
		ProductName: productName,
		ManageURL:   m.manageURL,
	}

	go func() {
		if err := m.mailer.SendActivationAlert(context.Background(), alert); err != nil {
			slog.Error("Failed to send activation alert", "error", err, "refid", licence.Refid)
		}
	}()
}

// Verify looks up a licence by exact key and returns it only while it is
// currently active. Missing, pending, revoked and date-expired keys all
// collapse to (nil, nil) so callers cannot probe licence state.
func (m *LicenceManager) Verify(ctx context.Context, key string) (*models.Licence, error) {
	licence, err := m.licences.GetLicenceByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !licence.IsActive() {
		return nil, nil
	}
	return licence, nil
}

// FindByRefid looks up a licence by its public reference. Absence is
// (nil, nil), never an error.
func (m *LicenceManager) FindByRefid(ctx context.Context, refid string) (*models.Licence, error) {
	licence, err := m.licences.GetLicenceByRefid(ctx, refid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return licence, nil
}

// Revoke marks the licence revoked. A missing licence is reported as
// (false, nil) rather than an error; revoking an already-revoked licence
// succeeds.
func (m *LicenceManager) Revoke(ctx context.Context, licenceID uuid.UUID) (bool, error) {
	revoked, err := m.licences.RevokeLicence(ctx, licenceID)
	if err != nil {
		return false, err
	}
	if revoked {
		slog.Info("Licence revoked", "licence_id", licenceID)
	}
	return revoked, nil
}

// SweepExpired persists the expired status for active licences whose expiry
// date has passed. Reads stay purely derived until this runs, so status
// breakdowns report date-expired-but-unswept licences as active.
func (m *LicenceManager) SweepExpired(ctx context.Context) (int, error) {
	count, err := m.licences.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		slog.Info("Expired licences swept", "count", count)
	}
	return count, nil
}

// NotifyExpiring sends an expiration warning to clients of active licences
// expiring within the given window. Each mail is best-effort: failures are
// logged and skipped. Returns the number of warnings dispatched.
func (m *LicenceManager) NotifyExpiring(ctx context.Context, days int) (int, error) {
	now := time.Now().UTC()
	licences, err := m.licences.ListExpiring(ctx, now, days)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range licences {
		licence := &licences[i]
		if licence.ClientID == nil || licence.ExpiresAt == nil {
			continue
		}

		client, err := m.clients.GetClient(ctx, *licence.ClientID)
		if err != nil {
			slog.Error("Failed to resolve client for expiration warning", "error", err, "refid", licence.Refid)
			continue
		}
		if client.Email == "" {
			continue
		}

		daysLeft := int(math.Ceil(licence.ExpiresAt.Sub(now).Hours() / 24))
		warning := ExpirationWarning{
			Name:      client.Name,
			Email:     client.Email,
			Key:       licence.Key,
			ExpiresAt: licence.ExpiresAt.Format("2006-01-02"),
			DaysLeft:  daysLeft,
			RenewURL:  fmt.Sprintf("%s/%s", m.renewURL, licence.ID),
		}

		if err := m.mailer.SendExpirationWarning(ctx, warning); err != nil {
			slog.Error("Failed to send expiration warning", "error", err, "refid", licence.Refid)
			continue
		}
		sent++
	}

	return sent, nil
}
