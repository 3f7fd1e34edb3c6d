package db

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"zinga/models"
	"zinga/utils"
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
)

// Authenticate checks email and password against the users collection and
// returns the user without its password. Five consecutive failures lock the
// account for fifteen minutes. Login bookkeeping is written without a
// timestamped backup.
func (s *Store) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	var (
		user    models.User
		authErr error
	)
	_, err := s.mutate(ctx, "login", false, func(doc *models.AppData) (bool, error) {
		idx := -1
		for i := range doc.Users {
			if strings.EqualFold(doc.Users[i].Email, email) {
				idx = i
				break
			}
		}
		if idx < 0 {
			authErr = ErrInvalidCredentials
			return false, nil
		}

		u := &doc.Users[idx]
		now := s.now().UTC()
		if u.LockedUntil != nil && now.Before(*u.LockedUntil) {
			authErr = fmt.Errorf("%w until %s", ErrAccountLocked, u.LockedUntil.Format(time.RFC3339))
			return false, nil
		}

		if !s.passwordMatches(u.Password, password) {
			u.LoginAttempts++
			if u.LoginAttempts >= maxLoginAttempts {
				until := now.Add(lockoutDuration)
				u.LockedUntil = &until
				u.LoginAttempts = 0
				s.log.Warn().Str("user", u.ID).Msg("too many failed logins, account locked")
			}
			authErr = ErrInvalidCredentials
			return true, nil
		}

		// Accounts restored from old documents may still hold plaintext.
		if !utils.IsPasswordHash(u.Password) {
			hash, err := utils.HashPassword(password, s.config.BcryptCost)
			if err != nil {
				return false, err
			}
			u.Password = hash
		}
		u.LoginAttempts = 0
		u.LockedUntil = nil
		u.LastLogin = &now
		user = *u
		return true, nil
	})
	if err != nil {
		return models.User{}, err
	}
	if authErr != nil {
		return models.User{}, authErr
	}
	user.Password = ""
	return user, nil
}

func (s *Store) passwordMatches(stored, given string) bool {
	if stored == "" {
		return false
	}
	if utils.IsPasswordHash(stored) {
		return utils.CheckPasswordHash(given, stored)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
