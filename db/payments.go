package db

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"zinga/models"
)

// ConfirmResult is returned by ConfirmPayments.
type ConfirmResult struct {
	Success   bool `json:"success"`
	Processed int  `json:"processed"`
}

// ConfirmPayments marks the listed pending purchases completed and grants
// their modules to the purchasing users. Purchases that are already completed
// or not found are skipped and not counted.
func (s *Store) ConfirmPayments(ctx context.Context, purchaseIDs []string) (ConfirmResult, error) {
	if len(purchaseIDs) == 0 {
		return ConfirmResult{}, ErrNoPurchaseIDs
	}
	wanted := make(map[string]struct{}, len(purchaseIDs))
	for _, id := range purchaseIDs {
		wanted[id] = struct{}{}
	}

	processed := 0
	_, err := s.mutate(ctx, "confirm_payments", true, func(doc *models.AppData) (bool, error) {
		now := s.now().UTC()
		for i := range doc.Purchases {
			p := &doc.Purchases[i]
			if _, ok := wanted[p.ID]; !ok || p.Status == models.StatusCompleted {
				continue
			}
			p.Status = models.StatusCompleted
			confirmed := now
			p.ConfirmedAt = &confirmed
			processed++

			idx := doc.FindUser(p.UserID)
			if idx < 0 {
				s.log.Warn().Str("purchase", p.ID).Str("user", p.UserID).Msg("confirmed purchase references a missing user")
				continue
			}
			u := &doc.Users[idx]
			u.PurchasedModules = appendUnique(u.PurchasedModules, p.AllModuleIDs()...)
			u.TotalSpent = roundCents(u.TotalSpent + p.Amount)
		}
		return processed > 0, nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{Success: true, Processed: processed}, nil
}

// CreatePurchase records a pending purchase of moduleIDs by userID. An amount
// of zero charges the sum of the module prices; repeated ids are charged once.
func (s *Store) CreatePurchase(ctx context.Context, userID string, moduleIDs []string, amount float64) (models.Purchase, error) {
	if len(moduleIDs) == 0 {
		return models.Purchase{}, fmt.Errorf("%w: no module ids provided", ErrUnknownModule)
	}

	ids := appendUnique(nil, moduleIDs...)
	var created models.Purchase
	_, err := s.mutate(ctx, "create_purchase", true, func(doc *models.AppData) (bool, error) {
		if doc.FindUser(userID) < 0 {
			return false, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		total := 0.0
		for _, id := range ids {
			idx := doc.FindModule(id)
			if idx < 0 {
				return false, fmt.Errorf("%w: %s", ErrUnknownModule, id)
			}
			total += doc.Modules[idx].Price
		}
		if amount == 0 {
			amount = total
		}

		now := s.now().UTC()
		created = models.Purchase{
			ID:        uuid.NewString(),
			UserID:    userID,
			ModuleID:  ids[0],
			ModuleIDs: ids,
			Amount:    roundCents(amount),
			Status:    models.StatusPending,
			CreatedAt: &now,
		}
		doc.Purchases = append(doc.Purchases, created)
		return true, nil
	})
	if err != nil {
		return models.Purchase{}, err
	}
	return created, nil
}

func appendUnique(dst []string, ids ...string) []string {
	if dst == nil {
		dst = []string{}
	}
	seen := make(map[string]struct{}, len(dst)+len(ids))
	for _, id := range dst {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		dst = append(dst, id)
	}
	return dst
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
