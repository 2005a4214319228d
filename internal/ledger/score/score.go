// Package score computes a worker's trust score from a credential snapshot.
//
// Compute is pure: the same Snapshot and evaluation time always produce the
// same Result, bit for bit. Callers pass "now" explicitly; nothing here reads
// the clock.
package score

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"slices"
	"time"

	"github.com/zeebo/blake3"

	"upandup/internal/ledger/models"
)

// Factor weights. They sum to 100.
const (
	WeightCredentialCount     = 25.0
	WeightVerificationRate    = 30.0
	WeightEmployerEndorsement = 20.0
	WeightBlockchainIntegrity = 15.0
	WeightTimeFactored        = 10.0

	// credentialSaturation is the count at which credentialCount is maxed.
	credentialSaturation = 10.0
	// tenureRampDays is how long timeFactored takes to reach its weight.
	tenureRampDays = 90.0
)

// CredentialFacts is the subset of a credential that affects the score.
type CredentialFacts struct {
	ID         string
	Type       models.CredentialType
	IssuerType models.IssuerType
	Status     models.VerificationStatus
}

// Snapshot is everything Compute reads.
type Snapshot struct {
	Credentials     []CredentialFacts
	DIDSet          bool
	AnchorConfirmed bool
	Status          models.OnboardingStatus
	RegisteredAt    *time.Time
}

// Result is the derived score.
type Result struct {
	Score     int
	Factors   models.Factors
	Breakdown models.Breakdown
	Digest    string
}

// FromModels builds a snapshot from stored entities.
func FromModels(worker *models.Worker, credentials []*models.Credential, anchorConfirmed bool) Snapshot {
	facts := make([]CredentialFacts, 0, len(credentials))
	for _, c := range credentials {
		facts = append(facts, CredentialFacts{
			ID:         c.ID.String(),
			Type:       c.Type,
			IssuerType: c.Issuer.Type,
			Status:     c.Status,
		})
	}
	return Snapshot{
		Credentials:     facts,
		DIDSet:          worker.HasDID(),
		AnchorConfirmed: anchorConfirmed,
		Status:          worker.Status,
		RegisteredAt:    worker.RegisteredAt,
	}
}

// Compute derives the trust score.
func Compute(s Snapshot, now time.Time) Result {
	creds := slices.Clone(s.Credentials)
	slices.SortFunc(creds, func(a, b CredentialFacts) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	var b models.Breakdown
	types := make([]string, 0, len(creds))
	for _, c := range creds {
		if c.Status == models.VerificationRejected {
			continue
		}
		b.TotalCredentials++
		if !slices.Contains(types, string(c.Type)) {
			types = append(types, string(c.Type))
		}
		if c.Status != models.VerificationVerified {
			continue
		}
		b.VerifiedCredentials++
		switch c.IssuerType {
		case models.IssuerEmployer:
			b.EmployerVerified = true
		case models.IssuerGovernment:
			b.GovernmentVerified = true
		}
	}
	slices.Sort(types)
	b.CredentialTypes = types
	b.BlockchainVerified = s.DIDSet && s.AnchorConfirmed

	tenure := tenureDays(s, now)

	f := models.Factors{
		CredentialCount:  math.Min(WeightCredentialCount, float64(b.TotalCredentials)*WeightCredentialCount/credentialSaturation),
		VerificationRate: WeightVerificationRate * float64(b.VerifiedCredentials) / float64(max(b.TotalCredentials, 1)),
		TimeFactored:     math.Min(WeightTimeFactored, WeightTimeFactored*tenure/tenureRampDays),
	}
	if b.EmployerVerified {
		f.EmployerEndorsement = WeightEmployerEndorsement
	}
	if b.BlockchainVerified {
		f.BlockchainIntegrity = WeightBlockchainIntegrity
	}

	total := int(math.Round(f.Sum()))
	total = min(max(total, 0), 100)

	return Result{
		Score:     total,
		Factors:   f,
		Breakdown: b,
		Digest:    digest(creds, s, tenure),
	}
}

func tenureDays(s Snapshot, now time.Time) float64 {
	if s.Status == models.OnboardingInvited || s.Status == "" || s.RegisteredAt == nil {
		return 0
	}
	d := now.Sub(*s.RegisteredAt)
	if d <= 0 {
		return 0
	}
	return d.Hours() / 24
}

// digest hashes the canonical snapshot: sorted credentials, DID flags and
// the tenure the time factor was evaluated at.
func digest(sorted []CredentialFacts, s Snapshot, tenure float64) string {
	h := blake3.New()
	for _, c := range sorted {
		writeField(h, c.ID)
		writeField(h, string(c.Type))
		writeField(h, string(c.IssuerType))
		writeField(h, string(c.Status))
	}
	writeField(h, string(s.Status))
	var flags [2]byte
	if s.DIDSet {
		flags[0] = 1
	}
	if s.AnchorConfirmed {
		flags[1] = 1
	}
	_, _ = h.Write(flags[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(tenure))
	_, _ = h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

// writeField length-prefixes v so adjacent fields cannot run together.
func writeField(h *blake3.Hasher, v string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(v)))
	_, _ = h.Write(n[:])
	_, _ = h.Write([]byte(v))
}
