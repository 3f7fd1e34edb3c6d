package models

import (
	"encoding/json"
	"time"
)

// Collection names as they appear in the persisted document.
const (
	CollectionUsers     = "users"
	CollectionModules   = "modules"
	CollectionPackages  = "packages"
	CollectionPurchases = "purchases"
)

// AuxiliaryCollections are carried through saves untouched; their element shape
// belongs to the admin UI.
var AuxiliaryCollections = []string{
	"contentFiles",
	"uploadQueue",
	"categories",
	"comments",
	"subscriptions",
	"transactions",
	"notifications",
	"scheduledContent",
	"flaggedContent",
	"accessLogs",
	"bundles",
	"ageGroups",
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// User represents a storefront or back-office account.
type User struct {
	ID               string     `json:"id" validate:"required"`
	Email            string     `json:"email" validate:"required,email"` // Unique, compared case-insensitively
	Password         string     `json:"password,omitempty"`              // bcrypt hash once persisted
	Name             string     `json:"name"`
	Role             string     `json:"role" validate:"omitempty,oneof=admin user"`
	PurchasedModules []string   `json:"purchasedModules"`
	TotalSpent       float64    `json:"totalSpent" validate:"gte=0"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
	LastLogin        *time.Time `json:"lastLogin,omitempty"`
	LoginAttempts    int        `json:"loginAttempts,omitempty" validate:"gte=0"`
	LockedUntil      *time.Time `json:"lockedUntil,omitempty"`

	Extra map[string]json.RawMessage `json:"-"` // Fields the admin UI sends that are not modelled here
}

// Module is a single educational video in the catalog.
type Module struct {
	ID          string   `json:"id" validate:"required"`
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Price       float64  `json:"price" validate:"gte=0"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Thumbnail   string   `json:"thumbnail"`
	VideoURL    string   `json:"videoUrl"`
	IsActive    bool     `json:"isActive"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Package is a purchasable bundle offer (subscription, one-time or physical).
type Package struct {
	ID          string          `json:"id" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Price       float64         `json:"price" validate:"gte=0"`
	Type        string          `json:"type" validate:"omitempty,oneof=subscription one-time physical"`
	Features    json.RawMessage `json:"features,omitempty"` // Serialized list; either a JSON array or a string holding one
	IsActive    bool            `json:"isActive"`
	IsPopular   bool            `json:"isPopular"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Purchase records a checkout. UserID is a weak reference to users.
type Purchase struct {
	ID          string     `json:"id" validate:"required"`
	UserID      string     `json:"userId" validate:"required"`
	ModuleID    string     `json:"moduleId,omitempty"`
	ModuleIDs   []string   `json:"moduleIds,omitempty"`
	Amount      float64    `json:"amount" validate:"gte=0"`
	Status      string     `json:"status" validate:"required,oneof=pending completed"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// AllModuleIDs returns ModuleID followed by ModuleIDs, without duplicates.
func (p Purchase) AllModuleIDs() []string {
	ids := make([]string, 0, len(p.ModuleIDs)+1)
	seen := make(map[string]struct{}, len(p.ModuleIDs)+1)
	for _, id := range append([]string{p.ModuleID}, p.ModuleIDs...) {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// AppData is the whole application document persisted as global-app-data.json.
// It has no json tags: MarshalJSON and DecodeAppData own the wire shape.
type AppData struct {
	Users     []User
	Modules   []Module
	Packages  []Package
	Purchases []Purchase

	Auxiliary map[string][]json.RawMessage // Keyed by AuxiliaryCollections names
	Settings  map[string]json.RawMessage   // Merged shallowly on save

	LastSaved   *time.Time
	LastUpdated *time.Time
	Version     int64 // Incremented on every accepted write

	Extra map[string]json.RawMessage // Unknown top-level keys
}

// IsCollection reports whether name is a persisted array collection.
func IsCollection(name string) bool {
	switch name {
	case CollectionUsers, CollectionModules, CollectionPackages, CollectionPurchases:
		return true
	}
	for _, aux := range AuxiliaryCollections {
		if aux == name {
			return true
		}
	}
	return false
}

// CollectionLen returns the number of elements in the named collection.
func (d *AppData) CollectionLen(name string) int {
	switch name {
	case CollectionUsers:
		return len(d.Users)
	case CollectionModules:
		return len(d.Modules)
	case CollectionPackages:
		return len(d.Packages)
	case CollectionPurchases:
		return len(d.Purchases)
	}
	return len(d.Auxiliary[name])
}

// FindUser returns the index of the user with the given id, or -1.
func (d *AppData) FindUser(id string) int {
	for i := range d.Users {
		if d.Users[i].ID == id {
			return i
		}
	}
	return -1
}

// FindModule returns the index of the module with the given id, or -1.
func (d *AppData) FindModule(id string) int {
	for i := range d.Modules {
		if d.Modules[i].ID == id {
			return i
		}
	}
	return -1
}

// MarshalJSON writes every collection as an array (never null) so the admin UI
// can iterate without guards. Keys come out sorted.
func (d AppData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+len(AuxiliaryCollections)+8)
	for k, v := range d.Extra {
		out[k] = v
	}
	out[CollectionUsers] = nonNil(d.Users)
	out[CollectionModules] = nonNil(d.Modules)
	out[CollectionPackages] = nonNil(d.Packages)
	out[CollectionPurchases] = nonNil(d.Purchases)
	for _, name := range AuxiliaryCollections {
		out[name] = nonNil(d.Auxiliary[name])
	}
	if d.Settings != nil {
		out["settings"] = d.Settings
	} else {
		out["settings"] = map[string]json.RawMessage{}
	}
	if d.LastSaved != nil {
		out["lastSaved"] = d.LastSaved
	}
	if d.LastUpdated != nil {
		out["lastUpdated"] = d.LastUpdated
	}
	out["version"] = d.Version
	return json.Marshal(out)
}

// UnmarshalJSON decodes strictly: any record that DecodeAppData would
// quarantine is reported as an error.
func (d *AppData) UnmarshalJSON(data []byte) error {
	doc, quarantined, err := DecodeAppData(data)
	if err != nil {
		return err
	}
	if len(quarantined) > 0 {
		return &InvalidRecordsError{Records: quarantined}
	}
	*d = *doc
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, p)
	if err != nil {
		return err
	}
	p.Extra = extra
	if p.PurchasedModules == nil {
		p.PurchasedModules = []string{}
	}
	*u = User(p)
	return nil
}

func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	return joinExtra(plain(u), u.Extra)
}

func (m *Module) UnmarshalJSON(data []byte) error {
	type plain Module
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, p)
	if err != nil {
		return err
	}
	p.Extra = extra
	if p.Tags == nil {
		p.Tags = []string{}
	}
	*m = Module(p)
	return nil
}

func (m Module) MarshalJSON() ([]byte, error) {
	type plain Module
	return joinExtra(plain(m), m.Extra)
}

func (p *Package) UnmarshalJSON(data []byte) error {
	type plain Package
	var pl plain
	if err := json.Unmarshal(data, &pl); err != nil {
		return err
	}
	extra, err := splitExtra(data, pl)
	if err != nil {
		return err
	}
	pl.Extra = extra
	*p = Package(pl)
	return nil
}

func (p Package) MarshalJSON() ([]byte, error) {
	type plain Package
	return joinExtra(plain(p), p.Extra)
}

func (p *Purchase) UnmarshalJSON(data []byte) error {
	type plain Purchase
	var pl plain
	if err := json.Unmarshal(data, &pl); err != nil {
		return err
	}
	extra, err := splitExtra(data, pl)
	if err != nil {
		return err
	}
	pl.Extra = extra
	*p = Purchase(pl)
	return nil
}

func (p Purchase) MarshalJSON() ([]byte, error) {
	type plain Purchase
	return joinExtra(plain(p), p.Extra)
}
