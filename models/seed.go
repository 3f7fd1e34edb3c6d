package models

import (
	"encoding/json"
	"time"
)

// Seed returns the default document written on first run and by a reset.
// adminPasswordHash must already be hashed.
func Seed(now time.Time, adminEmail, adminPasswordHash string) *AppData {
	now = now.UTC()
	aux := make(map[string][]json.RawMessage, len(AuxiliaryCollections))
	for _, name := range AuxiliaryCollections {
		aux[name] = []json.RawMessage{}
	}
	return &AppData{
		Users: []User{{
			ID:               "admin-1",
			Email:            adminEmail,
			Password:         adminPasswordHash,
			Name:             "Zinga Linga Admin",
			Role:             RoleAdmin,
			PurchasedModules: []string{},
			CreatedAt:        &now,
		}},
		Modules: []Module{
			{
				ID:          "module-alphabet-adventure",
				Title:       "Alphabet Adventure",
				Description: "Sing along with Kiki and Tano as they meet every letter from A to Z.",
				Price:       9.99,
				Category:    "Language",
				Tags:        []string{"letters", "phonics", "songs"},
				Thumbnail:   "/images/modules/alphabet-adventure.jpg",
				VideoURL:    "/videos/alphabet-adventure.mp4",
				IsActive:    true,
			},
			{
				ID:          "module-counting-safari",
				Title:       "Counting Safari",
				Description: "Count the animals of the savanna from one to twenty.",
				Price:       12.99,
				Category:    "Numbers",
				Tags:        []string{"counting", "animals"},
				Thumbnail:   "/images/modules/counting-safari.jpg",
				VideoURL:    "/videos/counting-safari.mp4",
				IsActive:    true,
			},
		},
		Packages:  []Package{},
		Purchases: []Purchase{},
		Auxiliary: aux,
		Settings: map[string]json.RawMessage{
			"siteName":          json.RawMessage(`"Zinga Linga"`),
			"currency":          json.RawMessage(`"USD"`),
			"maintenanceMode":   json.RawMessage(`false`),
			"allowRegistration": json.RawMessage(`true`),
			"enableComments":    json.RawMessage(`true`),
		},
		LastSaved:   &now,
		LastUpdated: &now,
	}
}
