package models

// PendingContact is a row of the warehouse view listing Mobilize users not yet synced
type PendingContact struct {
	MobilizeID   int64  `db:"mobilizeid"`
	EmailAddress string `db:"email_address"`
	GivenName    string `db:"given_name"`
	FamilyName   string `db:"family_name"`
	PhoneNumber  string `db:"phone_number"`
	PostalCode   string `db:"postal_code"`
}

// PendingContactColumns is the projection read from the source table, in scan order
var PendingContactColumns = []string{
	"mobilizeid",
	"email_address",
	"given_name",
	"family_name",
	"phone_number",
	"postal_code",
}
