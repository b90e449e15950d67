package models

import (
	"fmt"
)

//Item represents a single inventory item returned by the character endpoint
type Item struct {
	// DestinyItemComponent https://bungie-net.github.io/multi/schema_Destiny-Entities-Items-DestinyItemComponent.html#schema_Destiny-Entities-Items-DestinyItemComponent
	ItemHash   uint   `json:"itemHash"`
	InstanceID string `json:"itemInstanceId"`
	BucketHash uint   `json:"bucketHash"`
	State      int    `json:"state"`
	Quantity   int    `json:"quantity"`

	// Definition is looked up from the installed manifest, nil when the manifest has no entry
	// for the item hash.
	Definition *ItemDefinition `json:"-"`
}

// ItemDefinition holds the fields of DestinyInventoryItemDefinition that are needed to display
// a pursuit.
type ItemDefinition struct {
	Hash                uint
	Name                string
	Description         string
	ItemTypeDisplayName string
	Redacted            bool
}

func (i *Item) String() string {
	if i.Definition != nil {
		return fmt.Sprintf("Item{itemHash: %d, name: %q, type: %q, redacted: %v}",
			i.ItemHash, i.Definition.Name, i.Definition.ItemTypeDisplayName, i.Definition.Redacted)
	}

	return fmt.Sprintf("Item{itemHash: %d, quantity: %d}", i.ItemHash, i.Quantity)
}

// Name returns the display name of the item, or an empty string when it is unknown.
func (i *Item) Name() string {
	if i == nil || i.Definition == nil {
		return ""
	}

	return i.Definition.Name
}

// TypeName returns the itemTypeDisplayName of the item ("Bounty", "Quest Step", ...).
func (i *Item) TypeName() string {
	if i == nil || i.Definition == nil {
		return ""
	}

	return i.Definition.ItemTypeDisplayName
}

// Eligible reports whether the item can be shown. Items without a name or that are
// redacted in the manifest are never shown.
func (i *Item) Eligible() bool {
	if i == nil || i.Definition == nil {
		return false
	}

	return i.Definition.Name != "" && !i.Definition.Redacted
}

// ItemList is a collection of Item instances.
type ItemList []*Item

// ItemFilter is a type that will be used as a paramter to a filter function.
// The function pointed to will need to return true if the element meets some criteria
// and false otherwise. If the result of this filter is false, then the item will be removed.
type ItemFilter func(*Item, interface{}) bool

// FilterItems will filter the receiver slice of Items and return only the items that match
// the criteria specified in ItemFilter. The receiver is never modified.
func (items ItemList) FilterItems(filter ItemFilter, arg interface{}) ItemList {

	result := make(ItemList, 0, len(items))

	for _, item := range items {
		if filter(item, arg) {
			result = append(result, item)
		}
	}

	return result
}

func eligibleFilter(item *Item, _ interface{}) bool {
	return item.Eligible()
}

func pursuitTypeFilter(item *Item, arg interface{}) bool {
	return item.Eligible() && item.TypeName() == arg.(string)
}

// Eligible returns the displayable items. A non-empty pursuitType further restricts the
// result to items with that itemTypeDisplayName.
func (items ItemList) Eligible(pursuitType string) ItemList {
	if pursuitType == "" {
		return items.FilterItems(eligibleFilter, nil)
	}

	return items.FilterItems(pursuitTypeFilter, pursuitType)
}

// PursuitTypes returns the distinct non-empty itemTypeDisplayName values in the order
// they first appear in the list.
func (items ItemList) PursuitTypes() []string {
	seen := make(map[string]bool)
	types := make([]string, 0, 8)
	for _, item := range items {
		name := item.TypeName()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		types = append(types, name)
	}

	return types
}
