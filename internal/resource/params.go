package resource

import (
	"fmt"
	"net/url"

	"github.com/oapi-codegen/runtime"
)

// ListParams filters a collection listing. Zero fields are omitted.
type ListParams struct {
	Search   string
	Ordering string
	Page     int
	// Active restricts the listing to active (true) or inactive (false)
	// objects on collections that have an ActiveField.
	Active *bool
	// Extra carries collection-specific filters ("status", "cliente", ...).
	Extra url.Values
}

// Query encodes p as query parameters for ep, using form style with explode
// like the generated API clients do.
func (p ListParams) Query(ep Endpoint) (url.Values, error) {
	query := url.Values{}

	add := func(name string, value any) error {
		encoded, err := runtime.StyleParamWithLocation("form", true, name, runtime.ParamLocationQuery, value)
		if err != nil {
			return fmt.Errorf("encoding query parameter %s: %w", name, err)
		}
		parsed, err := url.ParseQuery(encoded)
		if err != nil {
			return fmt.Errorf("parsing query parameter %s: %w", name, err)
		}
		for k, vs := range parsed {
			query[k] = append(query[k], vs...)
		}
		return nil
	}

	if p.Search != "" {
		if err := add("search", p.Search); err != nil {
			return nil, err
		}
	}
	if p.Ordering != "" {
		if err := add("ordering", p.Ordering); err != nil {
			return nil, err
		}
	}
	if p.Page > 0 {
		if err := add("page", p.Page); err != nil {
			return nil, err
		}
	}
	if p.Active != nil {
		field := ep.ActiveField()
		if field == "" {
			return nil, fmt.Errorf("resource %s has no active filter", ep)
		}
		if err := add(field, *p.Active); err != nil {
			return nil, err
		}
	}
	for name, values := range p.Extra {
		for _, v := range values {
			if err := add(name, v); err != nil {
				return nil, err
			}
		}
	}

	return query, nil
}
