// Package dynamo provides shared DynamoDB constants and utilities.
package dynamo

const (
	// Primary key attributes.
	AttrPK = "pk"
	AttrSK = "sk"

	// Key prefixes.
	PrefixUser    = "USER#"
	PrefixAddress = "ADDRESS#"

	// GSI attributes for the address -> owner lookup.
	AttrGSI1PK = "gsi1pk"
	AttrGSI1SK = "gsi1sk"

	// Index names.
	IndexGSI1 = "gsi1"
)
