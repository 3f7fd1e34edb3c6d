package db

import "errors"

// Sentinel errors returned by Store. Callers match them with errors.Is; the
// returned errors usually wrap them with more context.
var (
	ErrDestructiveSave   = errors.New("refusing to save: incoming data would empty a non-empty collection")
	ErrVersionConflict   = errors.New("document was modified by another client")
	ErrCorruptDocument   = errors.New("stored document is not valid JSON")
	ErrInvalidBackupName = errors.New("invalid backup filename")
	ErrBackupNotFound    = errors.New("backup not found")
	ErrNoPurchaseIDs     = errors.New("no purchase ids provided")
	ErrUserNotFound      = errors.New("user not found")
	ErrUnknownModule     = errors.New("unknown module")
	ErrInvalidRecords    = errors.New("records are invalid after sanitizing")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account temporarily locked")

	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidQuery      = errors.New("invalid query")
)
