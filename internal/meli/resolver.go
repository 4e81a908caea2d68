package meli

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// Resolver finds the marketplace listing that best represents a catalog row.
type Resolver struct {
	client *Client
}

func NewResolver(client *Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve queries by SKU first when one is present, then falls back to the
// normalized description. A nil Listing with nil error is a valid "no match"
// outcome. ErrUnauthorized propagates so the pipeline can refresh the token;
// any other transport error degrades to no-match for that attempt.
func (r *Resolver) Resolve(ctx context.Context, accessToken, sku, description string) (*Listing, error) {
	primary := sku
	if primary == "" {
		primary = description
	}

	listing, err := r.search(ctx, accessToken, primary)
	if err != nil {
		return nil, err
	}
	if listing != nil {
		return listing, nil
	}

	if primary == description {
		return nil, nil
	}

	log.Debug().Str("query", description).Msg("Primary query unmatched, retrying with description")
	return r.search(ctx, accessToken, description)
}

func (r *Resolver) search(ctx context.Context, accessToken, query string) (*Listing, error) {
	listing, err := r.client.Search(ctx, accessToken, query)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil, err
		}
		log.Warn().Err(err).Str("query", query).Msg("Search attempt failed, treating as no match")
		return nil, nil
	}
	return listing, nil
}
