package bungie

// DefaultBaseURL is the host for all of the Bungie.net endpoints below.
const DefaultBaseURL = "https://www.bungie.net"

// Constant API endpoints, relative to the client's BaseURL
const (
	//AuthorizeEndpoint = "http://localhost:8000/en/oauth/authorize"
	AuthorizeEndpoint                    = "https://www.bungie.net/en/oauth/authorize"
	TokenEndpoint                        = "/Platform/App/OAuth/Token/"
	GetMembershipsForCurrentUserEndpoint = "/Platform/User/GetMembershipsForCurrentUser/"
	GetProfileEndpointFormat             = "/Platform/Destiny2/%d/Profile/%s/"
	GetCharacterEndpointFormat           = "/Platform/Destiny2/%d/Profile/%s/Character/%s/"
	GetManifestEndpoint                  = "/Platform/Destiny2/Manifest/"
)

// Component constant values that are needed for certain Bungie API requests that specify which
// collections of values should be returned in the response.
const (
	ProfilesComponent              = "100"
	ProfileInventoriesComponent    = "102"
	CharactersComponent            = "200"
	CharacterInventoriesComponent  = "201"
	CharacterProgressionsComponent = "202"
	CharacterActivitiesComponent   = "204"
	ItemInstancesComponent         = "300"
	ItemObjectivesComponent        = "301"
)

// PlatformErrorCodes used to drive the client
const (
	SuccessErrorCode = 1
	// ThrottleLimitExceededMomentarily
	ThrottleErrorCode = 36
	// Prefix shared by all of the ThrottleLimitExceeded* statuses
	ThrottleErrorStatus = "ThrottleLimitExceeded"
)

// Inventory bucket holding bounties, quests and other pursuits.
const (
	pursuitsBucket = 1345459588
)

// DefaultLanguage is the manifest language requested when none is configured.
const DefaultLanguage = "en"
