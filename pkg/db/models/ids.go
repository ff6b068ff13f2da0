package models

import "github.com/google/uuid"

// ensureID assigns a v4 id when the caller left it empty. IDs are generated in
// Go rather than by a column default so sqlite-backed runs behave the same.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&Pharmacy{},
		&InventoryItem{},
		&Order{},
		&OrderLineItem{},
		&Volunteer{},
		&VolunteerActiveOrder{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
