package actionnetwork

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIdentifierNotFound means the response carried no identifier in the expected namespace
	ErrIdentifierNotFound = errors.New("no identifier with expected prefix in response")

	// ErrMissingContactPoint means neither an email address nor a mobile number was supplied
	ErrMissingContactPoint = errors.New("either email_address or mobile_number is required")
)

// PersonRequest is the create-or-update input for a single person
type PersonRequest struct {
	EmailAddress string
	GivenName    string
	FamilyName   string
	MobileNumber string
	PostalCode   string
	Tags         []string
}

// Person is the subset of the OSDI person resource this service reads
type Person struct {
	Identifiers []string `json:"identifiers"`
	GivenName   string   `json:"given_name,omitempty"`
	FamilyName  string   `json:"family_name,omitempty"`
}

// ExternalID returns the first identifier in the prefix namespace, with the prefix removed.
// Anything after a further colon is dropped; an empty id is skipped.
func (p *Person) ExternalID(prefix string) (string, error) {
	for _, id := range p.Identifiers {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		v, _, _ := strings.Cut(strings.TrimPrefix(id, prefix), ":")
		if v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrIdentifierNotFound, prefix)
}

// OSDI wire format for POST /people

type emailAddress struct {
	Address string `json:"address"`
}

type phoneNumber struct {
	Number string `json:"number"`
	Status string `json:"status,omitempty"`
}

type postalAddress struct {
	PostalCode string `json:"postal_code"`
}

type personBody struct {
	EmailAddresses  []emailAddress  `json:"email_addresses,omitempty"`
	GivenName       string          `json:"given_name,omitempty"`
	FamilyName      string          `json:"family_name,omitempty"`
	PhoneNumbers    []phoneNumber   `json:"phone_numbers,omitempty"`
	PostalAddresses []postalAddress `json:"postal_addresses,omitempty"`
}

type upsertBody struct {
	Person  personBody `json:"person"`
	AddTags []string   `json:"add_tags,omitempty"`
}

func newUpsertBody(req PersonRequest) (upsertBody, error) {
	email := strings.TrimSpace(req.EmailAddress)
	mobile := strings.TrimSpace(req.MobileNumber)
	if email == "" && mobile == "" {
		return upsertBody{}, ErrMissingContactPoint
	}

	body := upsertBody{
		Person: personBody{
			GivenName:  req.GivenName,
			FamilyName: req.FamilyName,
		},
		AddTags: req.Tags,
	}
	if email != "" {
		body.Person.EmailAddresses = []emailAddress{{Address: email}}
	}
	if mobile != "" {
		body.Person.PhoneNumbers = []phoneNumber{{Number: mobile, Status: "subscribed"}}
	}
	if pc := strings.TrimSpace(req.PostalCode); pc != "" {
		body.Person.PostalAddresses = []postalAddress{{PostalCode: pc}}
	}

	return body, nil
}
