package sdk

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail checks the address shape only
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(strings.TrimSpace(email)) {
		return errcode.ErrInvalidEmail
	}
	return nil
}

// ValidatePassword checks the minimum password length
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < constant.MinPasswordLength {
		return errcode.ErrPasswordTooShort
	}
	return nil
}

// ValidateName checks the minimum display name length
func ValidateName(name string) error {
	if utf8.RuneCountInString(strings.TrimSpace(name)) < constant.MinNameLength {
		return errcode.ErrNameTooShort
	}
	return nil
}

// ValidateSearchTerm checks the minimum user search term length
func ValidateSearchTerm(term string) error {
	if utf8.RuneCountInString(strings.TrimSpace(term)) < constant.MinSearchTermLength {
		return errcode.ErrSearchTermTooShort
	}
	return nil
}
