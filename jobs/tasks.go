package jobs

import (
	"context"
	"encoding/json"
	"time"

	"momali-api/models"
	"momali-api/services"
	"momali-api/store"
	"momali-api/utils"
)

// AlertBroadcaster pushes a freshly created alert to connected clients.
// Delivery is best-effort; a push failure never fails the sweep.
type AlertBroadcaster interface {
	BroadcastToUser(userID string, payload []byte) error
}

// Jobs holds the scheduled sweeps. Every sweep swallows per-unit failures and
// reports totals through LogSweep, so one bad consent or token never aborts
// the rest of the run.
type Jobs struct {
	store       store.Store
	consents    *services.ConsentService
	tokens      *services.TokenService
	sync        *services.SyncService
	broadcaster AlertBroadcaster

	safetyWindow time.Duration
	now          func() time.Time
}

func NewJobs(st store.Store, consents *services.ConsentService, tokens *services.TokenService, syncService *services.SyncService, safetyWindow time.Duration) *Jobs {
	return &Jobs{
		store:        st,
		consents:     consents,
		tokens:       tokens,
		sync:         syncService,
		safetyWindow: safetyWindow,
		now:          time.Now,
	}
}

// SetBroadcaster attaches the websocket hub once routes are wired.
func (j *Jobs) SetBroadcaster(b AlertBroadcaster) {
	j.broadcaster = b
}

// RefreshExpiringTokens refreshes every token whose known expiry falls within
// the safety window. Returns (refreshed, failed).
func (j *Jobs) RefreshExpiringTokens(ctx context.Context) (int, int) {
	cutoff := j.now().UTC().Add(j.safetyWindow)
	tokens, err := j.store.ListExpiringTokens(ctx, cutoff)
	if err != nil {
		utils.SafeLog("❌ [Sweep] token refresh: listing expiring tokens failed: %v", err)
		return 0, 0
	}

	refreshed, failed := 0, 0
	for i := range tokens {
		if _, err := j.tokens.RefreshToken(ctx, &tokens[i]); err != nil {
			utils.SafeLog("⚠️ [Sweep] token refresh failed for consent %s: %v", utils.MaskID(tokens[i].ConsentID), err)
			failed++
			continue
		}
		refreshed++
	}
	utils.LogSweep("token-refresh", refreshed, failed)
	return refreshed, failed
}

// SyncAll walks every consent, skips the inactive ones, and runs the full
// accounts -> balances -> transactions pipeline per consent. Returns the total
// rows processed and the number of consents that failed.
func (j *Jobs) SyncAll(ctx context.Context) (int, int) {
	consents, err := j.store.ListConsents(ctx)
	if err != nil {
		utils.SafeLog("❌ [Sweep] sync: listing consents failed: %v", err)
		return 0, 0
	}

	total, failed := 0, 0
	for i := range consents {
		consent := &consents[i]
		if err := j.consents.EnsureActive(consent, true); err != nil {
			continue
		}

		processed, err := j.syncConsent(ctx, consent)
		total += processed
		if err != nil {
			utils.SafeLog("⚠️ [Sweep] sync failed for consent %s: %v", utils.MaskID(consent.ConsentID), err)
			failed++
		}
	}
	utils.LogSweep("full-sync", total, failed)
	return total, failed
}

func (j *Jobs) syncConsent(ctx context.Context, consent *models.Consent) (int, error) {
	token, err := j.tokens.EnsureValidToken(ctx, consent)
	if err != nil {
		return 0, err
	}
	if token == nil {
		return 0, nil
	}

	user, err := j.store.GetUserByID(ctx, consent.UserID)
	if err != nil {
		return 0, err
	}

	total := 0
	count, err := j.sync.SyncAccounts(ctx, user, consent, token.AccessToken)
	total += count
	if err != nil {
		return total, err
	}

	accounts, err := j.store.ListAccounts(ctx, user.ID, consent.Provider)
	if err != nil {
		return total, err
	}

	count, err = j.sync.SyncBalances(ctx, user, accounts, token.AccessToken)
	total += count
	if err != nil {
		return total, err
	}

	count, err = j.sync.SyncTransactions(ctx, user, accounts, token.AccessToken, nil)
	total += count
	return total, err
}

// TriggerLowBalanceAlerts scans every stored balance and raises one
// low_balance alert per overdrawn account, skipping accounts that already
// carry an unresolved one. All new alerts commit in a single batch.
func (j *Jobs) TriggerLowBalanceAlerts(ctx context.Context) (int, int) {
	balances, err := j.store.ListBalances(ctx)
	if err != nil {
		utils.SafeLog("❌ [Sweep] alerts: listing balances failed: %v", err)
		return 0, 0
	}

	seen := make(map[string]bool)
	var alerts []models.Alert
	failed := 0
	now := j.now().UTC()

	for _, balance := range balances {
		if balance.Amount >= 0 || seen[balance.AccountID] {
			continue
		}
		seen[balance.AccountID] = true

		exists, err := j.store.HasUnresolvedAlert(ctx, balance.AccountID, models.AlertTypeLowBalance)
		if err != nil {
			failed++
			continue
		}
		if exists {
			continue
		}

		alerts = append(alerts, models.Alert{
			UserID:      balance.UserID,
			AccountID:   balance.AccountID,
			Type:        models.AlertTypeLowBalance,
			Message:     "Account balance is below zero",
			Severity:    "high",
			TriggeredAt: now,
		})
	}

	if len(alerts) > 0 {
		if err := j.store.CreateAlerts(ctx, alerts); err != nil {
			utils.SafeLog("❌ [Sweep] alerts: batch insert failed: %v", err)
			utils.LogSweep("low-balance-alerts", 0, failed+len(alerts))
			return 0, failed + len(alerts)
		}
		j.pushAlerts(alerts)
	}

	utils.LogSweep("low-balance-alerts", len(alerts), failed)
	return len(alerts), failed
}

func (j *Jobs) pushAlerts(alerts []models.Alert) {
	if j.broadcaster == nil {
		return
	}
	for _, alert := range alerts {
		payload, err := json.Marshal(alert)
		if err != nil {
			continue
		}
		if err := j.broadcaster.BroadcastToUser(alert.UserID, payload); err != nil {
			utils.SafeLog("⚠️ [Sweep] alert push failed for user %s: %v", utils.MaskID(alert.UserID), err)
		}
	}
}
