package models

import (
	"errors"
	"sort"
	"time"

	strs "evoto/pkg/platform/strings"
)

// ErrClaimsInconsistent means the unit and unit-type claims cannot be paired.
// Only an administrator can fix the underlying profile.
var ErrClaimsInconsistent = errors.New("unit and unit type claims are inconsistent")

// MaxDecisionLength bounds the free-text decision stored on each record.
const MaxDecisionLength = 200

// Unit is a housing unit a subject votes for, e.g. {Depto 101} or {Bodega B-5}.
type Unit struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

func (u Unit) String() string {
	return u.Type + " " + u.Number
}

// SortUnits orders units by type, then number.
func SortUnits(units []Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].Type != units[j].Type {
			return units[i].Type < units[j].Type
		}
		return units[i].Number < units[j].Number
	})
}

// UnitsFromClaims pairs the comma separated unit and unit-type claims.
//
// Elements are trimmed. A single type applies to every unit; any other length
// mismatch, or an empty unit list, is ErrClaimsInconsistent. Repeated pairs
// collapse into one.
func UnitsFromClaims(unitList, typeList string) ([]Unit, error) {
	numbers := strs.SplitTrim(unitList)
	types := strs.SplitTrim(typeList)
	if len(numbers) == 0 || len(types) == 0 {
		return nil, ErrClaimsInconsistent
	}
	if len(types) != 1 && len(types) != len(numbers) {
		return nil, ErrClaimsInconsistent
	}

	seen := make(map[Unit]struct{}, len(numbers))
	units := make([]Unit, 0, len(numbers))
	for i, number := range numbers {
		unitType := types[0]
		if len(types) > 1 {
			unitType = types[i]
		}
		u := Unit{Type: unitType, Number: number}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		units = append(units, u)
	}
	return units, nil
}

// Voter is the identity snapshot copied onto every record of one commit.
type Voter struct {
	Subject   string    `json:"subject"`
	Name      string    `json:"name"`
	RUT       string    `json:"rut"`
	Email     string    `json:"email"`
	Community string    `json:"community"`
	LoginAt   time.Time `json:"login_at"`
}

// Verification is the document check snapshot attached to the vote.
type Verification struct {
	Status        string        `json:"status"`
	Match         bool          `json:"match"`
	DetectedRUT   string        `json:"detected_rut"`
	FrontImageKey string        `json:"front_image_key"`
	BackImageKey  string        `json:"back_image_key"`
	CroppedKey    string        `json:"cropped_key"`
	Attempts      int           `json:"attempts"`
	Rotations     int           `json:"rotations"`
	DetectionTime time.Duration `json:"detection_time"`
}

// ClientMetadata describes the device the vote was cast from.
type ClientMetadata struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	Browser   string `json:"browser"`
	OS        string `json:"os"`
	RequestID string `json:"request_id"`
}

// Record is one ballot row. (Subject, Unit) is unique forever; records are
// never updated or deleted.
type Record struct {
	Subject      string         `json:"subject"`
	Unit         Unit           `json:"unit"`
	Community    string         `json:"community"`
	Name         string         `json:"name"`
	RUT          string         `json:"rut"`
	Email        string         `json:"email"`
	Decision     string         `json:"decision"`
	SubmittedAt  time.Time      `json:"submitted_at"`
	LoginAt      time.Time      `json:"login_at"`
	Verification Verification   `json:"verification"`
	Client       ClientMetadata `json:"client"`
}

// CommitOutcome is the non-error result of a commit.
type CommitOutcome string

const (
	OutcomeCommitted    CommitOutcome = "committed"
	OutcomeAlreadyVoted CommitOutcome = "already_voted"
)

// VoteRequest is everything CommitVote needs to write the records for Pending.
type VoteRequest struct {
	Voter        Voter
	Pending      []Unit
	Decision     string
	Verification Verification
	Client       ClientMetadata
}

// CastRequest starts from the full unit set; pending units are derived.
type CastRequest struct {
	Voter        Voter
	Units        []Unit
	Decision     string
	Verification Verification
	Client       ClientMetadata
}

// CastResult reports what a cast did.
type CastResult struct {
	Outcome     CommitOutcome `json:"outcome"`
	Units       []Unit        `json:"units"`
	SubmittedAt time.Time     `json:"submitted_at"`
}
