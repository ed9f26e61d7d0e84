package models

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var errMissingStudentID = errors.New("roster row missing student id")

// JWTClaims represents the access token payload issued by the identity provider.
// Only UserID is consumed: it becomes recorded_by/graded_by on synced rows.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}
