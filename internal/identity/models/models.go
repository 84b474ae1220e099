// Package models holds the voter identity asserted by the identity provider.
package models

import (
	"strings"
	"time"

	ballot "evoto/internal/ballot/models"
)

// Claims are the ID-token attributes the voting flow relies on. Custom
// attributes are provisioned by the community administrator.
type Claims struct {
	Subject      string `json:"sub"`
	Name         string `json:"custom:Nombre"`
	RUT          string `json:"custom:Rut"`
	Community    string `json:"custom:Comunidad"`
	UnitList     string `json:"custom:Unidad"`
	UnitTypeList string `json:"custom:TipoUnidad"`
	Email        string `json:"email"`
}

// Units zips the unit and unit-type lists. See ballot.UnitsFromClaims.
func (c Claims) Units() ([]ballot.Unit, error) {
	return ballot.UnitsFromClaims(c.UnitList, c.UnitTypeList)
}

// Voter is the identity snapshot written onto ballot records.
func (c Claims) Voter(loginAt time.Time) ballot.Voter {
	return ballot.Voter{
		Subject:   c.Subject,
		Name:      strings.TrimSpace(c.Name),
		RUT:       strings.TrimSpace(c.RUT),
		Email:     strings.TrimSpace(c.Email),
		Community: strings.TrimSpace(c.Community),
		LoginAt:   loginAt,
	}
}
