package cache

import (
	"context"
	"encoding/json"
	"log"

	"rentport/internal/apiclient"
	"rentport/internal/constants"
	"rentport/internal/realtime"
	"rentport/internal/resource"
)

// Collection is the data hook for one resource type: an optimistic
// Cache bound to the REST client and to the tab's realtime channel.
type Collection[T any] struct {
	cache    *Cache[T]
	client   *apiclient.Client
	channel  *realtime.Channel
	resource string
}

func NewCollection[T any](client *apiclient.Client, channel *realtime.Channel, resourceName string, ident Identity[T]) *Collection[T] {
	col := &Collection[T]{
		cache:    New(ident),
		client:   client,
		channel:  channel,
		resource: resourceName,
	}

	if channel != nil {
		channel.OnResourceUpdate(resourceName, func(kind realtime.EventKind, data json.RawMessage) {
			var rec T
			if err := json.Unmarshal(data, &rec); err != nil {
				log.Printf("Dropping malformed %s %s event: %v", resourceName, kind, err)
				return
			}
			col.cache.ApplyEvent(kind, rec)
		})
	}

	return col
}

// Detach unbinds the realtime handler. Cache updates from still
// in-flight calls after this point are harmless no-ops for the UI.
func (col *Collection[T]) Detach() {
	if col.channel != nil {
		col.channel.OnResourceUpdate(col.resource, nil)
	}
}

func (col *Collection[T]) List() []T {
	return col.cache.List()
}

func (col *Collection[T]) OnChange(fn func([]T)) {
	col.cache.OnChange(fn)
}

// Refresh replaces the collection with the authoritative listing. On
// failure the existing contents stay visible (stale-but-available).
func (col *Collection[T]) Refresh(ctx context.Context) error {
	records, err := apiclient.List[T](ctx, col.client, col.resource)
	if err != nil {
		return err
	}
	col.cache.Replace(records)
	return nil
}

func (col *Collection[T]) Create(ctx context.Context, input T) (T, error) {
	return col.cache.Create(ctx, input, func(ctx context.Context) (T, error) {
		return apiclient.Create(ctx, col.client, col.resource, input)
	})
}

func (col *Collection[T]) Update(ctx context.Context, id string, input T) (T, error) {
	return col.cache.Update(ctx, id, func(ctx context.Context) (T, error) {
		return apiclient.Update(ctx, col.client, col.resource, id, input)
	})
}

func (col *Collection[T]) Delete(ctx context.Context, id string) error {
	return col.cache.Delete(ctx, id, func(ctx context.Context) error {
		return col.client.DeleteResource(ctx, col.resource, id)
	})
}

// Typed constructors for the portal's resource types.

func NewInvoices(client *apiclient.Client, channel *realtime.Channel) *Collection[resource.Invoice] {
	return NewCollection(client, channel, constants.ResourceInvoices, Identity[resource.Invoice]{
		ID:     func(in resource.Invoice) string { return in.ID },
		WithID: func(in resource.Invoice, id string) resource.Invoice { in.ID = id; return in },
	})
}

func NewProperties(client *apiclient.Client, channel *realtime.Channel) *Collection[resource.Property] {
	return NewCollection(client, channel, constants.ResourceProperties, Identity[resource.Property]{
		ID:     func(p resource.Property) string { return p.ID },
		WithID: func(p resource.Property, id string) resource.Property { p.ID = id; return p },
	})
}

func NewRooms(client *apiclient.Client, channel *realtime.Channel) *Collection[resource.Room] {
	return NewCollection(client, channel, constants.ResourceRooms, Identity[resource.Room]{
		ID:     func(r resource.Room) string { return r.ID },
		WithID: func(r resource.Room, id string) resource.Room { r.ID = id; return r },
	})
}

func NewTenants(client *apiclient.Client, channel *realtime.Channel) *Collection[resource.Tenant] {
	return NewCollection(client, channel, constants.ResourceTenants, Identity[resource.Tenant]{
		ID:     func(tn resource.Tenant) string { return tn.ID },
		WithID: func(tn resource.Tenant, id string) resource.Tenant { tn.ID = id; return tn },
	})
}
