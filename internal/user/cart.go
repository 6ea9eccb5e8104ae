package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/idsync/internal/bridge"
	"github.com/dmitrijs2005/idsync/internal/events"
	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/dmitrijs2005/idsync/internal/session"
)

// Cart is the product list of one MPID.
type Cart struct {
	u *User
}

// Add appends products and keeps at most MaxProducts entries, dropping the
// newest ones. With logEvent an AddToCart commerce event is emitted, unless
// running embedded, in which case the native host gets the products.
func (c *Cart) Add(ctx context.Context, products []models.Product, logEvent bool) error {
	u := c.u
	u.d.Timer.Reset()
	if err := u.allowed(ctx, "add to cart"); err != nil {
		return err
	}

	added := models.CopyProducts(products)
	for i := range added {
		added[i].Attributes = sanitizeAttributes(added[i].Attributes)
	}

	err := u.d.Session.Update(func(st *session.State) error {
		all, err := u.d.Persistence.CartProducts(ctx, u.mpid)
		if err != nil {
			return err
		}
		all = append(all, added...)
		if limit := u.d.maxProducts(); len(all) > limit {
			u.d.Log.Debug(ctx, "cart over capacity, truncating", "mpid", u.mpid, "items", len(all), "max", limit)
			all = all[:limit]
		}
		return c.save(ctx, st, all)
	})
	if err != nil {
		return err
	}

	if u.d.Bridge.IsWebViewEmbedded() {
		u.tryNative(ctx, bridge.AddToCart, added)
	} else if logEvent {
		c.logEvent(ctx, events.AddToCart, added)
	}
	return nil
}

// Remove deletes the first entry whose SKU matches product.
func (c *Cart) Remove(ctx context.Context, product models.Product, logEvent bool) error {
	u := c.u
	u.d.Timer.Reset()
	if err := u.allowed(ctx, "remove from cart"); err != nil {
		return err
	}

	var removed *models.Product
	err := u.d.Session.Update(func(st *session.State) error {
		all, err := u.d.Persistence.CartProducts(ctx, u.mpid)
		if err != nil {
			return err
		}
		for i := range all {
			if all[i].Sku == product.Sku {
				p := all[i]
				removed = &p
				all = append(all[:i], all[i+1:]...)
				break
			}
		}
		return c.save(ctx, st, all)
	})
	if err != nil || removed == nil {
		return err
	}

	if u.d.Bridge.IsWebViewEmbedded() {
		u.tryNative(ctx, bridge.RemoveFromCart, removed)
	} else if logEvent {
		c.logEvent(ctx, events.RemoveFromCart, []models.Product{*removed})
	}
	return nil
}

// Clear empties this MPID's cart only.
func (c *Cart) Clear(ctx context.Context) error {
	u := c.u
	u.d.Timer.Reset()
	if err := u.allowed(ctx, "clear cart"); err != nil {
		return err
	}

	if err := u.d.Session.Update(func(st *session.State) error {
		return c.save(ctx, st, []models.Product{})
	}); err != nil {
		return err
	}
	u.tryNative(ctx, bridge.ClearCart, nil)
	return nil
}

// GetCartProducts returns a copy of the stored cart.
func (c *Cart) GetCartProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	err := c.u.d.Session.Update(func(st *session.State) error {
		var err error
		out, err = c.u.d.Persistence.CartProducts(ctx, c.u.mpid)
		return err
	})
	return out, err
}

func (c *Cart) save(ctx context.Context, st *session.State, products []models.Product) error {
	u := c.u
	if u.isCurrent(st) {
		u.d.Persistence.StoreProductsInMemory(st, products)
	}
	if err := u.d.Persistence.SetCartProducts(ctx, u.mpid, products); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	return nil
}

func (c *Cart) logEvent(ctx context.Context, action events.ProductActionType, products []models.Product) {
	u := c.u
	if u.d.Events == nil {
		return
	}
	u.d.Events.LogEvent(ctx, events.NewProductAction(action, products, u.mpid, "", u.d.now()))
}

// sanitizeAttributes drops blank keys; an empty result is nil.
func sanitizeAttributes(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if strings.TrimSpace(k) == "" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
