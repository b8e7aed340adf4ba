package domain

import "encoding/json"

// EventType is the outer dispatch key of a decrypted callback.
type EventType string

const (
	EventCheckURL            EventType = "CHECK_URL"
	EventCheckUpdateSuiteURL EventType = "CHECK_UPDATE_SUITE_URL"
	EventSyncHTTPPushHigh    EventType = "SYNC_HTTP_PUSH_HIGH"
	EventSyncHTTPPushMedium  EventType = "SYNC_HTTP_PUSH_MEDIUM"
	EventDefault             EventType = "DEFAULT"
)

// BizType tags each item inside a SYNC_HTTP_PUSH_* event.
type BizType int

const (
	BizOrgSuiteAuth BizType = 4
	BizSuiteTicket  BizType = 2
	BizDefault      BizType = -1
)

// SyncAction is carried inside an ORG_SUITE_AUTH biz payload.
type SyncAction string

const (
	SyncOrgSuiteAuth    SyncAction = "ORG_SUITE_AUTH"
	SyncOrgSuiteRelieve SyncAction = "ORG_SUITE_RELIEVE"
)

// CallbackEvent is the decrypted, JSON-decoded callback body. Raw keeps the
// full object so handlers for unmodelled event types can still log it.
type CallbackEvent struct {
	EventType EventType `json:"EventType"`
	BizData   []BizItem `json:"bizData"`

	Raw json.RawMessage `json:"-"`
}

// BizItem is one business item of a sync push. BizData is a nested JSON
// string, decoded by the handler that owns the biz type.
type BizItem struct {
	BizType BizType `json:"biz_type"`
	CorpID  CorpID  `json:"corp_id"`
	BizData string  `json:"biz_data"`
}

// SuiteTicketPayload is the BizData of a SUITE_TICKET item.
type SuiteTicketPayload struct {
	SuiteTicket string `json:"suiteTicket"`
}

// OrgSuiteAuthPayload is the BizData of an ORG_SUITE_AUTH item. The full
// payload is persisted verbatim as the CorpAuth raw record.
type OrgSuiteAuthPayload struct {
	SyncAction    string `json:"syncAction"`
	PermanentCode string `json:"permanent_code"`
}

// AckEnvelope is the signed acknowledgment returned to the platform after a
// callback was processed. Field names follow the platform's wire contract,
// timeStamp casing included.
type AckEnvelope struct {
	MsgSignature string `json:"msg_signature"`
	Encrypt      string `json:"encrypt"`
	TimeStamp    string `json:"timeStamp"`
	Nonce        string `json:"nonce"`
}
