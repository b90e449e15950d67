package models

import "time"

// MilestoneType is the Destiny.Definitions.Milestones.DestinyMilestoneType enum.
type MilestoneType int

// Milestone types, only Daily and Weekly are displayed.
const (
	UnknownMilestone  MilestoneType = 0
	TutorialMilestone MilestoneType = 1
	OneTimeMilestone  MilestoneType = 2
	WeeklyMilestone   MilestoneType = 3
	DailyMilestone    MilestoneType = 4
	SpecialMilestone  MilestoneType = 5
)

// Milestone contains data about progress through a specific milestone for a character.
type Milestone struct {
	MilestoneHash uint      `json:"milestoneHash"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`

	Definition *MilestoneDefinition `json:"-"`
}

// MilestoneDefinition is the subset of DestinyMilestoneDefinition used for classification.
type MilestoneDefinition struct {
	Hash          uint
	Name          string
	Description   string
	MilestoneType MilestoneType
}

// Type returns the milestone type from the definition, UnknownMilestone when it is not known.
func (m *Milestone) Type() MilestoneType {
	if m == nil || m.Definition == nil {
		return UnknownMilestone
	}

	return m.Definition.MilestoneType
}

// Name returns the display name from the definition, empty when it is not known.
func (m *Milestone) Name() string {
	if m == nil || m.Definition == nil {
		return ""
	}

	return m.Definition.Name
}

// MilestoneList is an ordered collection of milestones.
type MilestoneList []*Milestone

func (milestones MilestoneList) ofType(t MilestoneType) MilestoneList {
	result := make(MilestoneList, 0, len(milestones))
	for _, m := range milestones {
		if m.Type() == t {
			result = append(result, m)
		}
	}

	return result
}

// Daily returns the daily milestones keeping their order.
func (milestones MilestoneList) Daily() MilestoneList { return milestones.ofType(DailyMilestone) }

// Weekly returns the weekly milestones keeping their order.
func (milestones MilestoneList) Weekly() MilestoneList { return milestones.ofType(WeeklyMilestone) }
