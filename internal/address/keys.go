package address

// Fixed sort keys.
const (
	SKProfile = "PROFILE"
	SKClaim   = "CLAIM"
)

// Attribute names for DynamoDB items.
const (
	AttrAddress       = "address"
	AttrChatID        = "chatId"
	AttrStatus        = "status"
	AttrFirstName     = "firstName"
	AttrUsername      = "username"
	AttrCreatedAt     = "createdAt"
	AttrDeactivatedAt = "deactivatedAt"
)
