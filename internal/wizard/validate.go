package wizard

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/msomdec/agun-web/internal/domain"
)

// Field names a draft field. Values match the HTML form input names.
type Field string

const (
	FieldFirstName       Field = "first_name"
	FieldLastName        Field = "last_name"
	FieldBirthDate       Field = "birth_date"
	FieldGender          Field = "gender"
	FieldStatus          Field = "status"
	FieldNationality     Field = "nationality"
	FieldOriginCity      Field = "origin_city"
	FieldCountry         Field = "country"
	FieldCity            Field = "city"
	FieldEmail           Field = "email"
	FieldPassword        Field = "password"
	FieldConfirmPassword Field = "confirm_password"
)

// StepFields lists the fields owned by each step.
var StepFields = map[int][]Field{
	1: {FieldFirstName, FieldLastName, FieldBirthDate, FieldGender, FieldStatus},
	2: {FieldNationality, FieldOriginCity, FieldCountry, FieldCity},
	3: {FieldEmail, FieldPassword, FieldConfirmPassword},
}

const (
	minNameLength     = 2
	minPasswordLength = 6
	minBirthYear      = 1900
	dateLayout        = "2006-01-02"
)

const (
	MsgFirstName       = "Prénom requis"
	MsgLastName        = "Nom requis"
	MsgBirthDate       = "La date de naissance est invalide"
	MsgGender          = "Genre requis"
	MsgStatus          = "Statut requis"
	MsgNationality     = "Nationalité requise"
	MsgOriginCity      = "Ville d'origine requise"
	MsgOriginMismatch  = "Cette ville n'appartient pas au pays de nationalité"
	MsgCountry         = "Pays de résidence requis"
	MsgCity            = "Ville de résidence requise"
	MsgCityMismatch    = "Cette ville n'appartient pas au pays de résidence"
	MsgEmail           = "Email invalide"
	MsgPassword        = "6 caractères minimum"
	MsgConfirmPassword = "Confirmation requise"
	MsgPasswordMatch   = "Les mots de passe ne correspondent pas"
)

// FieldErrors maps fields to a user-facing message.
type FieldErrors map[Field]string

// Locations is the part of the location catalog the wizard depends on.
type Locations interface {
	Country(id string) (domain.Country, bool)
	CitiesOf(countryID string) []domain.City
	HasCity(countryID, cityID string) bool
}

func validateStep(step int, d domain.Draft, locs Locations, now time.Time) FieldErrors {
	errs := FieldErrors{}
	switch step {
	case 1:
		if utf8.RuneCountInString(strings.TrimSpace(d.FirstName)) < minNameLength {
			errs[FieldFirstName] = MsgFirstName
		}
		if utf8.RuneCountInString(strings.TrimSpace(d.LastName)) < minNameLength {
			errs[FieldLastName] = MsgLastName
		}
		if _, err := ParseBirthDate(d.BirthDate, now); err != nil {
			errs[FieldBirthDate] = MsgBirthDate
		}
		if !d.Gender.Valid() {
			errs[FieldGender] = MsgGender
		}
		if !d.Status.Valid() {
			errs[FieldStatus] = MsgStatus
		}
	case 2:
		if _, ok := locs.Country(d.Nationality); !ok {
			errs[FieldNationality] = MsgNationality
		}
		switch {
		case d.OriginCity == "":
			errs[FieldOriginCity] = MsgOriginCity
		case !locs.HasCity(d.Nationality, d.OriginCity):
			errs[FieldOriginCity] = MsgOriginMismatch
		}
		if country, ok := locs.Country(d.Country); !ok || !country.Residence {
			errs[FieldCountry] = MsgCountry
		}
		switch {
		case d.City == "":
			errs[FieldCity] = MsgCity
		case !locs.HasCity(d.Country, d.City):
			errs[FieldCity] = MsgCityMismatch
		}
	case 3:
		if !validEmail(d.Email) {
			errs[FieldEmail] = MsgEmail
		}
		if len(d.Password) < minPasswordLength {
			errs[FieldPassword] = MsgPassword
		}
		switch {
		case len(d.ConfirmPassword) < minPasswordLength:
			errs[FieldConfirmPassword] = MsgConfirmPassword
		case d.Password != d.ConfirmPassword:
			errs[FieldConfirmPassword] = MsgPasswordMatch
		}
	}
	return errs
}

// ParseBirthDate parses a YYYY-MM-DD birth date and checks it is a real
// calendar date, not after now's calendar day and not before 1900.
func ParseBirthDate(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, domain.ErrInvalidInput
	}
	// time.Parse rejects out-of-range days such as 2023-02-30.
	birth, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, domain.ErrInvalidInput
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if birth.After(today) || birth.Year() < minBirthYear {
		return time.Time{}, domain.ErrInvalidInput
	}
	return birth, nil
}

func validEmail(value string) bool {
	if value == "" || strings.ContainsAny(value, " \t\r\n") {
		return false
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return false
	}
	at := strings.LastIndexByte(value, '@')
	return at > 0 && strings.Contains(value[at+1:], ".")
}
