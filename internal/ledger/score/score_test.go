package score

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upandup/internal/ledger/models"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func TestCompute_NoCredentials(t *testing.T) {
	r := Compute(Snapshot{Status: models.OnboardingRegistered, RegisteredAt: ago(45 * 24 * time.Hour)}, now)

	assert.Zero(t, r.Factors.CredentialCount)
	assert.Zero(t, r.Factors.VerificationRate)
	assert.Zero(t, r.Factors.EmployerEndorsement)
	assert.Zero(t, r.Factors.BlockchainIntegrity)
	assert.InDelta(t, 5.0, r.Factors.TimeFactored, 1e-9)
	assert.Equal(t, 5, r.Score)
	assert.Empty(t, r.Breakdown.CredentialTypes)
}

func TestCompute_InvitedWorkerScoresZero(t *testing.T) {
	r := Compute(Snapshot{Status: models.OnboardingInvited, RegisteredAt: ago(200 * 24 * time.Hour)}, now)
	assert.Equal(t, 0, r.Score)
	assert.Zero(t, r.Factors.TimeFactored)
}

func TestCompute_SingleEmployerCredential(t *testing.T) {
	s := Snapshot{
		Credentials: []CredentialFacts{
			{ID: "cred_1", Type: models.CredentialEmployerAppreciation, IssuerType: models.IssuerEmployer, Status: models.VerificationVerified},
		},
		DIDSet:          true,
		AnchorConfirmed: true,
		Status:          models.OnboardingRegistered,
		RegisteredAt:    ago(10 * 24 * time.Hour),
	}
	r := Compute(s, now)

	assert.InDelta(t, 2.5, r.Factors.CredentialCount, 1e-9)
	assert.InDelta(t, 30.0, r.Factors.VerificationRate, 1e-9)
	assert.InDelta(t, 20.0, r.Factors.EmployerEndorsement, 1e-9)
	assert.InDelta(t, 15.0, r.Factors.BlockchainIntegrity, 1e-9)
	assert.InDelta(t, 1.111, r.Factors.TimeFactored, 1e-3)
	// 68.61 rounds half-away-from-zero to 69.
	assert.Equal(t, 69, r.Score)
	assert.True(t, r.Breakdown.EmployerVerified)
	assert.True(t, r.Breakdown.BlockchainVerified)
	assert.Equal(t, []string{"employer-appreciation"}, r.Breakdown.CredentialTypes)
}

func TestCompute_RejectedCredentialsAreIgnored(t *testing.T) {
	s := Snapshot{
		Credentials: []CredentialFacts{
			{ID: "cred_a", Type: models.CredentialPANCard, IssuerType: models.IssuerGovernment, Status: models.VerificationVerified},
			{ID: "cred_b", Type: models.CredentialDegree, IssuerType: models.IssuerGovernment, Status: models.VerificationRejected},
			{ID: "cred_c", Type: models.CredentialSkillCertificate, IssuerType: models.IssuerPlatform, Status: models.VerificationPending},
			{ID: "cred_d", Type: models.CredentialVoterID, IssuerType: models.IssuerGovernment, Status: models.VerificationExpired},
		},
		Status: models.OnboardingVerified,
	}
	r := Compute(s, now)

	assert.Equal(t, 3, r.Breakdown.TotalCredentials)
	assert.Equal(t, 1, r.Breakdown.VerifiedCredentials)
	assert.True(t, r.Breakdown.GovernmentVerified)
	assert.False(t, r.Breakdown.EmployerVerified)
	assert.InDelta(t, 7.5, r.Factors.CredentialCount, 1e-9)
	assert.InDelta(t, 10.0, r.Factors.VerificationRate, 1e-9)
	assert.Equal(t, []string{"pan-card", "skill-certificate", "voter-id"}, r.Breakdown.CredentialTypes)
}

func TestCompute_PendingAnchorEarnsNoIntegrity(t *testing.T) {
	r := Compute(Snapshot{DIDSet: true, AnchorConfirmed: false, Status: models.OnboardingRegistered}, now)
	assert.Zero(t, r.Factors.BlockchainIntegrity)
	assert.False(t, r.Breakdown.BlockchainVerified)
}

func TestCompute_Saturation(t *testing.T) {
	creds := make([]CredentialFacts, 0, 14)
	for i := range 14 {
		creds = append(creds, CredentialFacts{
			ID:         fmt.Sprintf("cred_%02d", i),
			Type:       models.CredentialSkillCertificate,
			IssuerType: models.IssuerEmployer,
			Status:     models.VerificationVerified,
		})
	}
	r := Compute(Snapshot{
		Credentials:     creds,
		DIDSet:          true,
		AnchorConfirmed: true,
		Status:          models.OnboardingActive,
		RegisteredAt:    ago(400 * 24 * time.Hour),
	}, now)

	assert.InDelta(t, 25.0, r.Factors.CredentialCount, 1e-9)
	assert.InDelta(t, 10.0, r.Factors.TimeFactored, 1e-9)
	assert.Equal(t, 100, r.Score)
}

func TestCompute_Deterministic(t *testing.T) {
	s := Snapshot{
		Credentials: []CredentialFacts{
			{ID: "cred_b", Type: models.CredentialDegree, IssuerType: models.IssuerGovernment, Status: models.VerificationVerified},
			{ID: "cred_a", Type: models.CredentialEmployerAppreciation, IssuerType: models.IssuerEmployer, Status: models.VerificationPending},
		},
		DIDSet:       true,
		Status:       models.OnboardingVerified,
		RegisteredAt: ago(30 * 24 * time.Hour),
	}
	first := Compute(s, now)

	reordered := s
	reordered.Credentials = []CredentialFacts{s.Credentials[1], s.Credentials[0]}
	second := Compute(reordered, now)

	assert.Equal(t, first, second)
	assert.Len(t, first.Digest, 64)

	s.Credentials[1].Status = models.VerificationVerified
	assert.NotEqual(t, first.Digest, Compute(s, now).Digest)
}

func TestCompute_Bounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	statuses := []models.VerificationStatus{
		models.VerificationPending, models.VerificationVerified,
		models.VerificationRejected, models.VerificationExpired,
	}
	issuers := []models.IssuerType{models.IssuerGovernment, models.IssuerEmployer, models.IssuerPlatform}

	for i := range 500 {
		n := rng.IntN(25)
		creds := make([]CredentialFacts, n)
		for j := range creds {
			creds[j] = CredentialFacts{
				ID:         fmt.Sprintf("cred_%d_%d", i, j),
				Type:       models.CredentialSkillCertificate,
				IssuerType: issuers[rng.IntN(len(issuers))],
				Status:     statuses[rng.IntN(len(statuses))],
			}
		}
		r := Compute(Snapshot{
			Credentials:     creds,
			DIDSet:          rng.IntN(2) == 0,
			AnchorConfirmed: rng.IntN(2) == 0,
			Status:          models.OnboardingRegistered,
			RegisteredAt:    ago(time.Duration(rng.IntN(365*24)) * time.Hour),
		}, now)

		require.GreaterOrEqual(t, r.Score, 0)
		require.LessOrEqual(t, r.Score, 100)
		require.LessOrEqual(t, r.Breakdown.VerifiedCredentials, r.Breakdown.TotalCredentials)
	}
}
