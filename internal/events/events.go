// Package events defines the analytics message types the identity layer
// produces and the sink it hands them to.
package events

import (
	"context"
	"time"

	"github.com/dmitrijs2005/idsync/internal/logging"
	"github.com/dmitrijs2005/idsync/internal/models"
)

type MessageType int

const (
	SessionStart       MessageType = 1
	SessionEnd         MessageType = 2
	PageView           MessageType = 3
	PageEvent          MessageType = 4
	CrashReport        MessageType = 5
	OptOut             MessageType = 6
	AppStateTransition MessageType = 10
	Profile            MessageType = 14
	Commerce           MessageType = 16
)

type ProfileMessageType int

const ProfileLogout ProfileMessageType = 3

type ProductActionType int

const (
	ProductActionUnknown ProductActionType = iota
	AddToCart
	RemoveFromCart
	Checkout
	CheckoutOption
	Click
	ViewDetail
	Purchase
	Refund
	AddToWishlist
	RemoveFromWishlist
)

var productActionNames = map[ProductActionType][2]string{
	AddToCart:          {"Add to Cart", "AddToCart"},
	RemoveFromCart:     {"Remove from Cart", "RemoveFromCart"},
	Checkout:           {"Checkout", "Checkout"},
	CheckoutOption:     {"Checkout Option", "CheckoutOption"},
	Click:              {"Click", "Click"},
	ViewDetail:         {"View Detail", "ViewDetail"},
	Purchase:           {"Purchase", "Purchase"},
	Refund:             {"Refund", "Refund"},
	AddToWishlist:      {"Add to Wishlist", "AddToWishlist"},
	RemoveFromWishlist: {"Remove from Wishlist", "RemoveFromWishlist"},
}

// Name is the display name, "Unknown" for unrecognized actions.
func (a ProductActionType) Name() string {
	if n, ok := productActionNames[a]; ok {
		return n[0]
	}
	return "Unknown"
}

// ExpansionName is the name used when a commerce event is expanded.
func (a ProductActionType) ExpansionName() string {
	if n, ok := productActionNames[a]; ok {
		return n[1]
	}
	return "Unknown"
}

// Sink delivers events upstream.
type Sink interface {
	Send(ctx context.Context, ev *models.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev *models.Event) error

func (f SinkFunc) Send(ctx context.Context, ev *models.Event) error { return f(ctx, ev) }

// LogSink writes every event to a logger.
type LogSink struct {
	log logging.Logger
}

func NewLogSink(log logging.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(ctx context.Context, ev *models.Event) error {
	s.log.Info(ctx, "event", "type", ev.MessageType, "name", ev.Name, "mpid", ev.MPID, "sid", ev.SessionID)
	return nil
}

// NewLogout builds the profile message announcing a logout.
func NewLogout(mpid models.MPID, sessionID string, now time.Time) *models.Event {
	return &models.Event{
		MessageType:        int(Profile),
		MPID:               mpid,
		SessionID:          sessionID,
		Timestamp:          now.UnixMilli(),
		ProfileMessageType: int(ProfileLogout),
	}
}

// NewProductAction builds a commerce event for a cart change.
func NewProductAction(action ProductActionType, products []models.Product, mpid models.MPID, sessionID string, now time.Time) *models.Event {
	return &models.Event{
		MessageType: int(Commerce),
		Name:        "eCommerce - " + action.ExpansionName(),
		EventType:   int(action),
		MPID:        mpid,
		SessionID:   sessionID,
		Timestamp:   now.UnixMilli(),
		ProductAction: &models.ProductAction{
			Action:   int(action),
			Products: models.CopyProducts(products),
		},
	}
}
