package domain

// Identifier aliases for the DingTalk open platform.
// https://open.dingtalk.com/document/org/basic-concepts
type (
	CorpID  = string // a tenant organization subscribing to the suite
	UserID  = string // corp-scoped user id, resolved through the union id
	UnionID = string // platform-wide stable user id
	OpenID  = string // suite-scoped opaque user id
	AgentID = string // id of the app instance installed in a corp

	// IAM-side identifiers.
	StaffID  = string
	TenantID = string
)

// Suite identifies a registered third-party integration instance. The suite
// ticket is a rotating secret pushed by the platform via webhook; it is
// replaced wholesale on every SUITE_TICKET event.
type Suite struct {
	CorpID      CorpID `bson:"corp_id"      json:"corp_id"`
	SuiteKey    string `bson:"suite_key"    json:"suite_key"`
	SuiteTicket string `bson:"suite_ticket" json:"suite_ticket"`
}

// CorpAuth is the durable authorization grant a corp issues to the suite.
// Raw holds the platform's authorization payload as a JSON string; agent ids
// and scope grants are read out of it on demand.
type CorpAuth struct {
	CorpID        CorpID `bson:"corp_id"        json:"corp_id"`
	PermanentCode string `bson:"permanent_code" json:"permanent_code"`
	Raw           string `bson:"raw"            json:"raw"`
}

// DingUser is the identity record assembled from the platform's user profile
// plus the resolved corp-scoped user id. Keyed uniquely by (CorpID, UserID).
// StaffID and TenantID are filled in once the user is bound on the IAM side.
type DingUser struct {
	Nick    string  `bson:"nick"     json:"nick"`
	CorpID  CorpID  `bson:"corp_id"  json:"corp_id"`
	OpenID  OpenID  `bson:"open_id"  json:"open_id"`
	UnionID UnionID `bson:"union_id" json:"union_id"`
	UserID  UserID  `bson:"user_id"  json:"user_id"`

	Email     string `bson:"email,omitempty"      json:"email,omitempty"`
	AvatarURL string `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Mobile    string `bson:"mobile,omitempty"     json:"mobile,omitempty"`

	StaffID  StaffID  `bson:"staff_id,omitempty"  json:"staff_id,omitempty"`
	TenantID TenantID `bson:"tenant_id,omitempty" json:"tenant_id,omitempty"`
}
