package models

// PartnershipStatus is the admin-driven lifecycle of a partner organization.
type PartnershipStatus string

const (
	PartnershipPending   PartnershipStatus = "pending"
	PartnershipActive    PartnershipStatus = "active"
	PartnershipSuspended PartnershipStatus = "suspended"
)

// partnershipEdges lists the allowed admin transitions.
var partnershipEdges = map[PartnershipStatus][]PartnershipStatus{
	PartnershipPending:   {PartnershipActive, PartnershipSuspended},
	PartnershipActive:    {PartnershipSuspended},
	PartnershipSuspended: {PartnershipActive},
}

func (s PartnershipStatus) IsValid() bool {
	_, ok := partnershipEdges[s]
	return ok
}

// CanTransitionTo reports whether next is a permitted successor of s.
func (s PartnershipStatus) CanTransitionTo(next PartnershipStatus) bool {
	for _, allowed := range partnershipEdges[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OnboardingStatus is the forward-only lifecycle of a worker.
type OnboardingStatus string

const (
	OnboardingInvited    OnboardingStatus = "invited"
	OnboardingRegistered OnboardingStatus = "registered"
	OnboardingVerified   OnboardingStatus = "verified"
	OnboardingActive     OnboardingStatus = "active"
)

var onboardingRank = map[OnboardingStatus]int{
	OnboardingInvited:    0,
	OnboardingRegistered: 1,
	OnboardingVerified:   2,
	OnboardingActive:     3,
}

func (s OnboardingStatus) IsValid() bool {
	_, ok := onboardingRank[s]
	return ok
}

// AtLeast reports whether s is at or beyond other in the lifecycle.
func (s OnboardingStatus) AtLeast(other OnboardingStatus) bool {
	return onboardingRank[s] >= onboardingRank[other]
}

// AnchorStatus is the external network's view of a DID or VC anchor.
type AnchorStatus string

const (
	AnchorNone      AnchorStatus = ""
	AnchorPending   AnchorStatus = "pending"
	AnchorConfirmed AnchorStatus = "confirmed"
	AnchorFailed    AnchorStatus = "failed"
)

// Accepted reports whether the ledger may record an identifier with this anchor state.
func (a AnchorStatus) Accepted() bool {
	return a == AnchorPending || a == AnchorConfirmed
}

// IssuerType classifies who vouches for a credential.
type IssuerType string

const (
	IssuerGovernment IssuerType = "government"
	IssuerEmployer   IssuerType = "employer"
	IssuerPlatform   IssuerType = "platform"
)

func (t IssuerType) IsValid() bool {
	return t == IssuerGovernment || t == IssuerEmployer || t == IssuerPlatform
}

// VerificationStatus is the credential lifecycle.
//
//	pending -> verified | rejected
//	verified -> expired
//
// rejected and expired are terminal.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
	VerificationExpired  VerificationStatus = "expired"
)

func (s VerificationStatus) IsValid() bool {
	switch s {
	case VerificationPending, VerificationVerified, VerificationRejected, VerificationExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is accepted.
func (s VerificationStatus) IsTerminal() bool {
	return s == VerificationRejected || s == VerificationExpired
}
