package model

// Alert is an Event plus its accumulated Enrichment, as written to the
// Store (SPEC_FULL.md §3). Its key is (EventID, ObservedAt); AlertID
// equals EventID (invariant 6).
type Alert struct {
	Event
	Enrichment
}

// AlertID returns the store key's identity component. It is always equal
// to EventID (SPEC_FULL.md §3 invariant 6).
func (a Alert) AlertID() string {
	return a.EventID
}

// Merge combines a stored Alert with an incoming one under the Store's
// idempotent upsert rule (SPEC_FULL.md §4.8): Event fields are immutable
// once set and are taken from whichever side has a non-zero EventID,
// preferring the incoming Event only when the receiver has none yet;
// Enrichment is merged field-wise with monotonic status ordering.
func (a Alert) Merge(incoming Alert) Alert {
	merged := a
	if merged.Event.EventID == "" {
		merged.Event = incoming.Event
	}
	merged.Enrichment = a.Enrichment.Merge(incoming.Enrichment)
	return merged
}
