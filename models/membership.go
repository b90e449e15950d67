package models

import "strconv"

// MembershipType is the BungieMembershipType platform code.
type MembershipType int

// BungieMembershipType constant values
const (
	NoMembership MembershipType = 0
	Xbox         MembershipType = 1
	PSN          MembershipType = 2
	Steam        MembershipType = 3
	Blizzard     MembershipType = 4
	Stadia       MembershipType = 5
	Demon        MembershipType = 10
	BungieNext   MembershipType = 254
	AllPlatforms MembershipType = -1
)

func (t MembershipType) String() string {
	switch t {
	case Xbox:
		return "Xbox"
	case PSN:
		return "PlayStation"
	case Steam:
		return "Steam"
	case Blizzard:
		return "Blizzard"
	case Stadia:
		return "Stadia"
	case Demon:
		return "Demon"
	case BungieNext:
		return "BungieNext"
	case AllPlatforms:
		return "All"
	}

	return "Unknown(" + strconv.Itoa(int(t)) + ")"
}

// Membership holds information about a specific Destiny membership. One exists for each
// platform the account plays on.
type Membership struct {
	DisplayName    string         `json:"displayName"`
	MembershipType MembershipType `json:"membershipType"`
	MembershipID   string         `json:"membershipId"`
}

func (m *Membership) String() string {
	return m.MembershipType.String() + " (" + m.MembershipID + ")"
}

// ManifestVersion identifies a version of the remote reference dataset and where to get it.
type ManifestVersion struct {
	ContentVersion string
	DownloadURL    string
}
