package flows

import (
	"github.com/MrEthical07/eduAuth/jwt"
)

// ValidateFailureKind classifies access validation failures.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureUnauthorized
	ValidateFailureWrongKind
)

// ValidateResult returns either verified claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
}

// ValidateDeps captures access validation dependencies.
type ValidateDeps struct {
	Verify func(string) (*jwt.Claims, error)
}

// RunValidate verifies an access token. Access validation is stateless; a
// revoked refresh family does not shorten outstanding access tokens.
func RunValidate(tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.Verify(tokenStr)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureUnauthorized, Err: err}
	}
	if claims.Kind != jwt.KindAccess {
		return ValidateResult{Failure: ValidateFailureWrongKind}
	}
	return ValidateResult{Claims: claims}
}
