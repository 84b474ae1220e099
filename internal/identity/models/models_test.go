package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ballot "evoto/internal/ballot/models"
)

func TestClaimsUnitsBroadcastsSingleType(t *testing.T) {
	c := Claims{UnitList: "101, 102", UnitTypeList: "Depto"}
	units, err := c.Units()
	require.NoError(t, err)
	assert.Equal(t, []ballot.Unit{{Type: "Depto", Number: "101"}, {Type: "Depto", Number: "102"}}, units)
}

func TestClaimsUnitsRejectsMismatchedLists(t *testing.T) {
	c := Claims{UnitList: "101,102,103", UnitTypeList: "Depto,Bodega"}
	_, err := c.Units()
	assert.ErrorIs(t, err, ballot.ErrClaimsInconsistent)
}

func TestClaimsVoterSnapshot(t *testing.T) {
	loginAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c := Claims{Subject: "sub-1", Name: " Maria ", RUT: "12.345.678-5", Email: "maria@example.com", Community: "Los Aromos"}
	assert.Equal(t, ballot.Voter{
		Subject:   "sub-1",
		Name:      "Maria",
		RUT:       "12.345.678-5",
		Email:     "maria@example.com",
		Community: "Los Aromos",
		LoginAt:   loginAt,
	}, c.Voter(loginAt))
}
