package provider

// Market combines the Expand and Tracker clients into the single
// domain.MarketData collaborator the data layer depends on.
type Market struct {
	*Expand
	*Tracker
}

func NewMarket(expand *Expand, tracker *Tracker) *Market {
	return &Market{Expand: expand, Tracker: tracker}
}
