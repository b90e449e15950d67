package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ClassType is the Destiny.DestinyClass enum value returned for each character.
type ClassType int

// Class enum values passed in the Destiny API responses
const (
	TitanClass   ClassType = 0
	HunterClass  ClassType = 1
	WarlockClass ClassType = 2
	UnknownClass ClassType = 3
)

func (c ClassType) String() string {
	switch c {
	case TitanClass:
		return "Titan"
	case HunterClass:
		return "Hunter"
	case WarlockClass:
		return "Warlock"
	}

	return "Unknown"
}

// Character will represent a single in-game character along with the pursuits in its inventory
// and the milestones available to it. A Character value is a complete snapshot, a newer fetch
// replaces it entirely.
type Character struct {
	//https://bungie-net.github.io/multi/schema_Destiny-Entities-Characters-DestinyCharacterComponent.html#schema_Destiny-Entities-Characters-DestinyCharacterComponent
	MembershipID   string    `json:"membershipId"`
	MembershipType int       `json:"membershipType"`
	CharacterID    string    `json:"characterId"`
	DateLastPlayed time.Time `json:"dateLastPlayed"`
	ClassHash      uint      `json:"classHash"`
	ClassType      ClassType `json:"classType"`
	Light          int       `json:"light"`

	Inventory  ItemList      `json:"-"`
	Milestones MilestoneList `json:"-"`
}

// CharacterList represents a slice of Character pointers.
type CharacterList []*Character

// UnmarshalJSON decodes the characters component, an object keyed by character id, keeping
// the order in which the characters appear in the response. A plain JSON array is accepted too.
func (charList *CharacterList) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(data, (*[]*Character)(charList))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*charList = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("characters: expected object, got %v", tok)
	}

	chars := make(CharacterList, 0, 3)
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return err
		}

		char := &Character{}
		if err := dec.Decode(char); err != nil {
			return err
		}
		if char.CharacterID == "" {
			char.CharacterID, _ = key.(string)
		}
		chars = append(chars, char)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*charList = chars
	return nil
}

func (c *Character) String() string {
	return fmt.Sprintf("Character{ID: %s, Class: %s, Power: %d, LastPlayed: %v}",
		c.CharacterID, c.ClassType, c.Light, c.DateLastPlayed)
}

// Title is the short label used when listing characters, e.g. "Hunter - 1810".
func (c *Character) Title() string {
	return fmt.Sprintf("%s - %d", c.ClassType, c.Light)
}

// LastPlayedSort specifies a specific type for CharacterList that can be sorted by
// the date the character was last played.
type LastPlayedSort CharacterList

func (characters LastPlayedSort) Len() int { return len(characters) }
func (characters LastPlayedSort) Swap(i, j int) {
	characters[i], characters[j] = characters[j], characters[i]
}
func (characters LastPlayedSort) Less(i, j int) bool {
	return characters[i].DateLastPlayed.Before(characters[j].DateLastPlayed)
}

// FindCharacterFromID returns the character with the given ID or nil if the list does not contain it.
func (charList CharacterList) FindCharacterFromID(characterID string) *Character {
	for _, char := range charList {
		if char.CharacterID == characterID {
			return char
		}
	}

	return nil
}

// MostRecentlyPlayed returns the character with the latest DateLastPlayed. When more than one
// character shares that date the earliest one in the list wins. Nil is returned for an empty list.
func (charList CharacterList) MostRecentlyPlayed() *Character {
	var latest *Character
	for _, char := range charList {
		if char == nil {
			continue
		}
		if latest == nil || char.DateLastPlayed.After(latest.DateLastPlayed) {
			latest = char
		}
	}

	return latest
}
