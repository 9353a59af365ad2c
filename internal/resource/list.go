package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/florianilch/gerente/internal/apiclient"
)

// Getter issues authenticated GET requests. *apiclient.Client implements it.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values) (*apiclient.Response, error)
}

// Page is one page of a collection listing.
type Page[T any] struct {
	Results  []T     `json:"results"`
	Count    int     `json:"count"`
	Next     *string `json:"next,omitempty"`
	Previous *string `json:"previous,omitempty"`
}

// HasNext reports whether the server announced a following page.
func (p Page[T]) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}

// ErrNotAList is returned when a listing body is neither an array nor a
// paginated envelope.
var ErrNotAList = errors.New("response is not a list")

// DecodeList decodes a listing body. A bare array becomes a single page whose
// Count is the number of items.
func DecodeList[T any](data []byte) (Page[T], error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Page[T]{}, ErrNotAList
	}

	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Page[T]{}, fmt.Errorf("decoding list: %w", err)
		}
		return Page[T]{Results: items, Count: len(items)}, nil
	case '{':
		var envelope struct {
			Results  *[]T    `json:"results"`
			Count    *int    `json:"count"`
			Next     *string `json:"next"`
			Previous *string `json:"previous"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return Page[T]{}, fmt.Errorf("decoding page: %w", err)
		}
		if envelope.Results == nil {
			return Page[T]{}, ErrNotAList
		}
		page := Page[T]{
			Results:  *envelope.Results,
			Count:    len(*envelope.Results),
			Next:     envelope.Next,
			Previous: envelope.Previous,
		}
		if envelope.Count != nil {
			page.Count = *envelope.Count
		}
		return page, nil
	default:
		return Page[T]{}, ErrNotAList
	}
}

// List fetches one page of ep.
func List[T any](ctx context.Context, api Getter, ep Endpoint, params ListParams) (Page[T], error) {
	query, err := params.Query(ep)
	if err != nil {
		return Page[T]{}, err
	}

	resp, err := api.Get(ctx, ep.Path(), query)
	if err != nil {
		return Page[T]{}, fmt.Errorf("listing %s: %w", ep, err)
	}

	page, err := DecodeList[T](resp.Body)
	if err != nil {
		return Page[T]{}, fmt.Errorf("listing %s: %w", ep, err)
	}
	return page, nil
}

// Fetch decodes the object at path into a T.
func Fetch[T any](ctx context.Context, api Getter, path string) (T, error) {
	var v T
	resp, err := api.Get(ctx, path, nil)
	if err != nil {
		return v, err
	}
	if err := resp.Decode(&v); err != nil {
		return v, fmt.Errorf("decoding %s: %w", path, err)
	}
	return v, nil
}

// User is the profile returned by MePath.
type User struct {
	ID          int     `json:"id"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	IsSuperuser bool    `json:"is_superuser"`
	IsStaff     bool    `json:"is_staff"`
	Tipo        *string `json:"tipo"`
}

// Me fetches the profile of the authenticated user.
func Me(ctx context.Context, api Getter) (User, error) {
	return Fetch[User](ctx, api, MePath)
}
