package auth

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims the username and email and lowercases the email.
func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r RegisterRequest) Validate() []string {
	var problems []string
	if !usernamePattern.MatchString(r.Username) {
		problems = append(problems, "username must be alphanumeric and provided")
	}
	if !validEmail(r.Email) {
		problems = append(problems, "email must be valid")
	}
	if !strongPassword(r.Password) {
		problems = append(problems, "password must be at least 8 chars, include upper, lower, number and special char")
	}
	return problems
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r LoginRequest) Validate() []string {
	var problems []string
	if !validEmail(r.Email) {
		problems = append(problems, "email must be valid")
	}
	if r.Password == "" {
		problems = append(problems, "password is required")
	}
	return problems
}

// validEmail accepts a bare address only, not "Name <addr>" forms.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

func strongPassword(s string) bool {
	if len(s) < 8 {
		return false
	}

	var upper, lower, digit, special bool
	for _, c := range s {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		default:
			special = true
		}
	}
	return upper && lower && digit && special
}
