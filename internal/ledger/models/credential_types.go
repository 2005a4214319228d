package models

// CredentialType enumerates the document, skill and achievement kinds a
// worker can hold.
type CredentialType string

const (
	CredentialVoterID              CredentialType = "voter-id"
	CredentialPANCard              CredentialType = "pan-card"
	CredentialDrivingLicense       CredentialType = "driving-license"
	CredentialTenthMarksheet       CredentialType = "10th-marksheet"
	CredentialTwelfthMarksheet     CredentialType = "12th-marksheet"
	CredentialDiploma              CredentialType = "diploma"
	CredentialDegree               CredentialType = "degree"
	CredentialSkillCertificate     CredentialType = "skill-certificate"
	CredentialEmployerAppreciation CredentialType = "employer-appreciation"
	CredentialTrainingCertificate  CredentialType = "training-certificate"
)

// Category groups credential types for reporting.
type Category string

const (
	CategoryIdentity    Category = "identity"
	CategoryEducation   Category = "education"
	CategorySkill       Category = "skill"
	CategoryEndorsement Category = "endorsement"
	CategoryTraining    Category = "training"
)

type credentialTypeInfo struct {
	vcType   string
	category Category
	issuer   IssuerType
}

var credentialTypes = map[CredentialType]credentialTypeInfo{
	CredentialVoterID:              {"VoterIdCredential", CategoryIdentity, IssuerGovernment},
	CredentialPANCard:              {"PANCardCredential", CategoryIdentity, IssuerGovernment},
	CredentialDrivingLicense:       {"DrivingLicenseCredential", CategoryIdentity, IssuerGovernment},
	CredentialTenthMarksheet:       {"EducationCredential", CategoryEducation, IssuerGovernment},
	CredentialTwelfthMarksheet:     {"EducationCredential", CategoryEducation, IssuerGovernment},
	CredentialDiploma:              {"EducationCredential", CategoryEducation, IssuerGovernment},
	CredentialDegree:               {"EducationCredential", CategoryEducation, IssuerGovernment},
	CredentialSkillCertificate:     {"SkillCredential", CategorySkill, IssuerPlatform},
	CredentialEmployerAppreciation: {"EndorsementCredential", CategoryEndorsement, IssuerEmployer},
	CredentialTrainingCertificate:  {"TrainingCredential", CategoryTraining, IssuerPlatform},
}

// GenericVCType is used for kinds without a dedicated schema.
const GenericVCType = "GenericCredential"

func (t CredentialType) IsValid() bool {
	_, ok := credentialTypes[t]
	return ok
}

// VCType returns the verifiable credential type name registered with the provider.
func (t CredentialType) VCType() string {
	if info, ok := credentialTypes[t]; ok {
		return info.vcType
	}
	return GenericVCType
}

// Category returns the reporting group of the credential type.
func (t CredentialType) Category() Category {
	return credentialTypes[t].category
}

// DefaultIssuerType is the issuer type assumed when a request omits one.
func (t CredentialType) DefaultIssuerType() IssuerType {
	if info, ok := credentialTypes[t]; ok {
		return info.issuer
	}
	return IssuerPlatform
}

// RegistryBacked reports whether the document is held in the government
// document registry (DigiLocker) and can be checked there before issuance.
func (t CredentialType) RegistryBacked() bool {
	switch t.Category() {
	case CategoryIdentity, CategoryEducation:
		return t != CredentialDiploma && t != CredentialDegree
	}
	return false
}
