package maps

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

const (
	autocompleteFieldMask = "suggestions.placePrediction.placeId,suggestions.placePrediction.text"
	placeFieldMask        = "id,formattedAddress,location,addressComponents"
)

// AutocompleteRequest is the places:autocomplete body.
type AutocompleteRequest struct {
	Input               string   `json:"input"`
	IncludedRegionCodes []string `json:"includedRegionCodes,omitempty"`
	LanguageCode        string   `json:"languageCode,omitempty"`
}

type AutocompleteSuggestion struct {
	PlaceID     string
	Description string
}

// PlaceDetails is a resolved place.
type PlaceDetails struct {
	PlaceID           string
	FormattedAddress  string
	Location          LatLng
	AddressComponents []AddressComponent
}

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type AddressComponent struct {
	LongName  string   `json:"longText"`
	ShortName string   `json:"shortText"`
	Types     []string `json:"types"`
}

func (a AddressComponent) is(kind string) bool {
	for _, t := range a.Types {
		if t == kind {
			return true
		}
	}
	return false
}

// Component returns the long name of the first component of kind.
func (d PlaceDetails) Component(kind string) string {
	return d.component(kind, func(a AddressComponent) string { return a.LongName })
}

// ShortComponent is Component with the short name, e.g. an ISO country code.
func (d PlaceDetails) ShortComponent(kind string) string {
	return d.component(kind, func(a AddressComponent) string { return a.ShortName })
}

func (d PlaceDetails) component(kind string, name func(AddressComponent) string) string {
	for _, comp := range d.AddressComponents {
		if v := name(comp); v != "" && comp.is(kind) {
			return v
		}
	}
	return ""
}

type autocompleteResponse struct {
	Suggestions []struct {
		PlacePrediction *struct {
			PlaceID string `json:"placeId"`
			Text    struct {
				Text string `json:"text"`
			} `json:"text"`
		} `json:"placePrediction"`
	} `json:"suggestions"`
}

type placeResponse struct {
	ID                string             `json:"id"`
	FormattedAddress  string             `json:"formattedAddress"`
	Location          LatLng             `json:"location"`
	AddressComponents []AddressComponent `json:"addressComponents"`
}

// Autocomplete suggests places for partial input. Query predictions
// without a place id are dropped.
func (c *Client) Autocomplete(ctx context.Context, req AutocompleteRequest) ([]AutocompleteSuggestion, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "maps client not configured")
	}
	if strings.TrimSpace(req.Input) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "autocomplete input is required")
	}
	if req.LanguageCode == "" {
		req.LanguageCode = c.language
	}

	var resp autocompleteResponse
	if err := c.call(ctx, http.MethodPost, "places:autocomplete", autocompleteFieldMask, req, &resp); err != nil {
		return nil, classify(err, "autocomplete")
	}
	out := make([]AutocompleteSuggestion, 0, len(resp.Suggestions))
	for _, s := range resp.Suggestions {
		if p := s.PlacePrediction; p != nil && p.PlaceID != "" {
			out = append(out, AutocompleteSuggestion{PlaceID: p.PlaceID, Description: p.Text.Text})
		}
	}
	return out, nil
}

// ResolvePlace fetches the address components and location of placeID.
func (c *Client) ResolvePlace(ctx context.Context, placeID string) (*PlaceDetails, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "maps client not configured")
	}
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "place ID is required")
	}

	v, err, _ := c.resolves.Do(placeID, func() (any, error) {
		var resp placeResponse
		err := c.call(ctx, http.MethodGet, "places/"+url.PathEscape(placeID), placeFieldMask, nil, &resp)
		return resp, err
	})
	if err != nil {
		return nil, classify(err, "place resolve")
	}
	resp := v.(placeResponse)
	return &PlaceDetails{
		PlaceID:           resp.ID,
		FormattedAddress:  resp.FormattedAddress,
		Location:          resp.Location,
		AddressComponents: resp.AddressComponents,
	}, nil
}
