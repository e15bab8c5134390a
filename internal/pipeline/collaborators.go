package pipeline

import "context"

// PriceRecord is one observed fare for a route and date.
type PriceRecord struct {
	Route    string  `json:"route"`
	Date     string  `json:"date"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Carrier  string  `json:"carrier,omitempty"`
}

// QuoteSource supplies live pricing for the data-collection stage. A nil
// source is allowed; the stage then relies on generated estimates only.
type QuoteSource interface {
	Quotes(ctx context.Context, route, month string) ([]PriceRecord, error)
}

// AssetRef points at a visual asset selected for the campaign.
type AssetRef struct {
	ID       string            `json:"id"`
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AssetSource resolves image assets for the design stage. A nil source
// leaves the hero asset as a generated placeholder description.
type AssetSource interface {
	FindAsset(ctx context.Context, query string) (AssetRef, error)
}

// Renderer turns the assembled content and design artifacts into final
// markup for the deliverable.
type Renderer interface {
	Render(ctx context.Context, artifacts map[string]any) (string, error)
}
