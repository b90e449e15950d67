package bungie

import (
	"fmt"
	"net/http"

	"github.com/rking788/objective-tracker/models"
)

// APIRequest is a generic request object that can be sent to a bungie.Client and
// the client will automatically handle setting up the request body, url parameters,
// and full url (including endpoint).
type APIRequest struct {
	HTTPMethod string
	Endpoint   string
	Components []string
	Body       map[string]interface{}
}

// NewCurrentAccountRequest is a helper function for creating a request object to get the
// memberships for the user owning the access token.
func NewCurrentAccountRequest() *APIRequest {
	return &APIRequest{
		HTTPMethod: http.MethodGet,
		Endpoint:   GetMembershipsForCurrentUserEndpoint,
	}
}

// NewGetCharactersRequest is a helper function for getting the characters for a specific membership
func NewGetCharactersRequest(membership *models.Membership) *APIRequest {
	return &APIRequest{
		HTTPMethod: http.MethodGet,
		Endpoint:   fmt.Sprintf(GetProfileEndpointFormat, membership.MembershipType, membership.MembershipID),
		Components: []string{CharactersComponent},
	}
}

// NewGetCharacterRequest will be an APIRequest initialized to load a single character along with
// its inventory and progressions (which carry the milestones).
func NewGetCharacterRequest(membership *models.Membership, characterID string) *APIRequest {
	return &APIRequest{
		HTTPMethod: http.MethodGet,
		Endpoint: fmt.Sprintf(GetCharacterEndpointFormat, membership.MembershipType,
			membership.MembershipID, characterID),
		Components: []string{CharactersComponent, CharacterInventoriesComponent,
			CharacterProgressionsComponent},
	}
}

// NewGetManifestRequest creates the request for the current manifest metadata.
func NewGetManifestRequest() *APIRequest {
	return &APIRequest{
		HTTPMethod: http.MethodGet,
		Endpoint:   GetManifestEndpoint,
	}
}
