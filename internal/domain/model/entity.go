package model

// SelectableEntity is a lookup result offered for selection. Only ID is ever
// persisted; the labels exist for display.
type SelectableEntity struct {
	ID             string
	PrimaryLabel   string
	SecondaryLabel string
}

// EntityFromToken builds an entity whose labels are the raw identifier. Used
// for pre-existing selections and free-form tokens, which are never resolved
// against a provider.
func EntityFromToken(token string) SelectableEntity {
	return SelectableEntity{ID: token, PrimaryLabel: token}
}
