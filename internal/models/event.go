package models

// Event is an analytics message as seen by the identity layer. Only the
// fields the layer reads or writes are modelled; the rest travel in Data.
type Event struct {
	MessageType        int            `json:"dt"`
	Name               string         `json:"n,omitempty"`
	EventType          int            `json:"et,omitempty"`
	MPID               MPID           `json:"mpid"`
	SessionID          string         `json:"sid,omitempty"`
	Timestamp          int64          `json:"ct"`
	ProfileMessageType int            `json:"pet,omitempty"`
	ProductAction      *ProductAction `json:"pd,omitempty"`
	Data               map[string]any `json:"attrs,omitempty"`
}

// ProductAction describes a commerce action on one or more products.
type ProductAction struct {
	Action   int       `json:"an"`
	Products []Product `json:"pl"`
}
