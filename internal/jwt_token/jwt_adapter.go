package jwttoken

import (
	authmw "idlookup/pkg/platform/middleware/auth"
)

// Validator exposes the service to the auth middleware.
func (s *JWTService) Validator() authmw.JWTValidator {
	return middlewareValidator{svc: s}
}

type middlewareValidator struct {
	svc *JWTService
}

func (v middlewareValidator) ValidateToken(raw string) (*authmw.JWTClaims, error) {
	claims, err := v.svc.ValidateToken(raw)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{CallerID: claims.CallerID(), JTI: claims.ID}, nil
}
