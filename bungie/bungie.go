package bungie

import (
	"context"
	"sort"
	"time"

	"github.com/kpango/glg"

	"github.com/rking788/objective-tracker/models"
)

// CurrentUserMembershipsResponse contains information about the membership data for the currently
// authorized user. The request for this information will use the access_token to determine
// the current user
// https://bungie-net.github.io/multi/operation_get_User-GetMembershipDataForCurrentUser.html#operation_get_User-GetMembershipDataForCurrentUser
type CurrentUserMembershipsResponse struct {
	BaseResponse
	Response *struct {
		DestinyMemberships []*models.Membership `json:"destinyMemberships"`
		BungieNetUser      *BungieNetUser       `json:"bungieNetUser"`
	} `json:"Response"`
}

// BungieNetUser holds fields relating to a specific Bungie membership
type BungieNetUser struct {
	MembershipID string `json:"membershipId"`
	DisplayName  string `json:"displayName"`
}

// GetProfileResponse is the response from the GetProfile endpoint when only the characters
// component is requested.
//https://bungie-net.github.io/multi/operation_get_Destiny2-GetProfile.html#operation_get_Destiny2-GetProfile
type GetProfileResponse struct {
	BaseResponse
	Response *struct {
		Characters *struct {
			Data models.CharacterList `json:"data"`
		} `json:"characters"`
	} `json:"Response"`
}

// GetCharacterResponse is the response from the GetCharacter endpoint with the character,
// inventory and progression components.
//https://bungie-net.github.io/multi/operation_get_Destiny2-GetCharacter.html#operation_get_Destiny2-GetCharacter
type GetCharacterResponse struct {
	BaseResponse
	Response *struct {
		Character *struct {
			Data *models.Character `json:"data"`
		} `json:"character"`
		Inventory *struct {
			Data *struct {
				Items models.ItemList `json:"items"`
			} `json:"data"`
		} `json:"inventory"`
		Progressions *struct {
			Data *struct {
				Milestones map[string]*models.Milestone `json:"milestones"`
			} `json:"data"`
		} `json:"progressions"`
	} `json:"Response"`
}

func (r *GetCharacterResponse) character() *models.Character {
	if r.Response == nil || r.Response.Character == nil {
		return nil
	}

	return r.Response.Character.Data
}

func (r *GetCharacterResponse) items() models.ItemList {
	if r.Response == nil || r.Response.Inventory == nil || r.Response.Inventory.Data == nil {
		return nil
	}

	return r.Response.Inventory.Data.Items
}

func (r *GetCharacterResponse) milestones() models.MilestoneList {
	if r.Response == nil || r.Response.Progressions == nil || r.Response.Progressions.Data == nil {
		return nil
	}

	result := make(models.MilestoneList, 0, len(r.Response.Progressions.Data.Milestones))
	for _, m := range r.Response.Progressions.Data.Milestones {
		result = append(result, m)
	}
	// Map order is random, keep the snapshot stable between refreshes
	sort.Slice(result, func(i, j int) bool { return result[i].MilestoneHash < result[j].MilestoneHash })

	return result
}

// GetMemberships will request the Destiny memberships (one per platform) of the user that
// owns the current access token.
func (c *Client) GetMemberships(ctx context.Context) ([]*models.Membership, error) {

	accountResponse := CurrentUserMembershipsResponse{}
	if err := c.Execute(ctx, NewCurrentAccountRequest(), &accountResponse); err != nil {
		return nil, err
	}

	if accountResponse.Response == nil {
		return nil, nil
	}

	glg.Debugf("Found %d Destiny memberships", len(accountResponse.Response.DestinyMemberships))
	return accountResponse.Response.DestinyMemberships, nil
}

// GetCharacters loads the characters on a membership, most recently played first. Characters
// with the same last played date keep the order of the response.
func (c *Client) GetCharacters(ctx context.Context, membership *models.Membership) (models.CharacterList, error) {

	profile := GetProfileResponse{}
	if err := c.Execute(ctx, NewGetCharactersRequest(membership), &profile); err != nil {
		return nil, err
	}

	if profile.Response == nil || profile.Response.Characters == nil {
		return make(models.CharacterList, 0), nil
	}

	chars := profile.Response.Characters.Data
	if chars == nil {
		chars = make(models.CharacterList, 0)
	}
	sort.Stable(sort.Reverse(models.LastPlayedSort(chars)))

	return chars, nil
}

// GetCharacter loads a full snapshot of a single character: the pursuits in its inventory
// and its milestones, both resolved against the installed manifest when Definitions is set.
func (c *Client) GetCharacter(ctx context.Context, membership *models.Membership, characterID string) (*models.Character, error) {

	start := time.Now()
	response := GetCharacterResponse{}
	if err := c.Execute(ctx, NewGetCharacterRequest(membership, characterID), &response); err != nil {
		return nil, err
	}

	char := response.character()
	if char == nil {
		char = &models.Character{
			MembershipID:   membership.MembershipID,
			MembershipType: int(membership.MembershipType),
			CharacterID:    characterID,
		}
	}

	pursuits := make(models.ItemList, 0, 64)
	for _, item := range response.items() {
		if item.BucketHash == pursuitsBucket {
			pursuits = append(pursuits, item)
		}
	}
	char.Inventory = pursuits
	char.Milestones = response.milestones()

	if err := c.resolveDefinitions(ctx, char); err != nil {
		return nil, err
	}

	glg.Debugf("Loaded character %s with %d pursuits and %d milestones in %v",
		characterID, len(char.Inventory), len(char.Milestones), time.Since(start))
	return char, nil
}
