// Package fido is the client for the external FIDO (WebAuthn) server that
// runs device registration and assertion ceremonies.
package fido

// OptionsRequest asks for registration or sign options. RPID is the client
// certificate CN and RPName the client's display name.
type OptionsRequest struct {
	RPID         string `json:"rpId"`
	RPName       string `json:"rpName"`
	Platform     string `json:"platform"`
	EnrollmentID string `json:"enrollmentId"`
}

type RelyingParty struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type User struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type PubKeyCredParam struct {
	Type string `json:"type"`
	Alg  int    `json:"alg"`
}

type AuthenticatorSelection struct {
	AuthenticatorAttachment string `json:"authenticatorAttachment,omitempty"`
	ResidentKey             string `json:"residentKey,omitempty"`
	RequireResidentKey      bool   `json:"requireResidentKey,omitempty"`
	UserVerification        string `json:"userVerification,omitempty"`
}

type CredentialDescriptor struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Transports []string `json:"transports,omitempty"`
}

// RegistrationOptions are WebAuthn credential creation options.
type RegistrationOptions struct {
	RP                     RelyingParty            `json:"rp"`
	User                   User                    `json:"user"`
	Challenge              string                  `json:"challenge"`
	PubKeyCredParams       []PubKeyCredParam       `json:"pubKeyCredParams"`
	Timeout                int                     `json:"timeout,omitempty"`
	ExcludeCredentials     []CredentialDescriptor  `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection *AuthenticatorSelection `json:"authenticatorSelection,omitempty"`
	Attestation            string                  `json:"attestation,omitempty"`
}

// SignOptions are WebAuthn credential request options.
type SignOptions struct {
	Challenge        string                 `json:"challenge"`
	Timeout          int                    `json:"timeout,omitempty"`
	RPID             string                 `json:"rpId,omitempty"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials,omitempty"`
	UserVerification string                 `json:"userVerification,omitempty"`
}

// AttestationResponse is the authenticator's answer to a creation ceremony.
type AttestationResponse struct {
	ClientDataJSON    string `json:"clientDataJSON"`
	AttestationObject string `json:"attestationObject"`
}

// AssertionResponse is the authenticator's answer to a request ceremony.
type AssertionResponse struct {
	ClientDataJSON    string `json:"clientDataJSON"`
	AuthenticatorData string `json:"authenticatorData"`
	Signature         string `json:"signature"`
	UserHandle        string `json:"userHandle,omitempty"`
}

// RegistrationRequest submits a new credential for an enrollment.
type RegistrationRequest struct {
	ID           string              `json:"id"`
	RawID        string              `json:"rawId"`
	Type         string              `json:"type"`
	Response     AttestationResponse `json:"response"`
	EnrollmentID string              `json:"enrollmentId"`
}

// Assertion is a signed WebAuthn assertion.
type Assertion struct {
	ID       string            `json:"id"`
	RawID    string            `json:"rawId"`
	Type     string            `json:"type"`
	Response AssertionResponse `json:"response"`
}

// SignRequest checks an assertion for an enrollment.
type SignRequest struct {
	Assertion    Assertion `json:"assertion"`
	EnrollmentID string    `json:"enrollmentId"`
}
