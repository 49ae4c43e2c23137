// Package domain defines core data structures shared by the synchronizers and the recommendation engine.
package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Item tradable market item owned or tracked by the user.
type Item struct {
	// AppID Steam application id the item belongs to (730 for CS2, 570 for Dota 2).
	AppID string `json:"appid" yaml:"appid"`
	// MarketHashName stable per-variant identifier, independent of the localized name.
	MarketHashName string `json:"market_hash_name" yaml:"market_hash_name"`
	// Name display name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// IconURL icon reference.
	IconURL string `json:"icon_url,omitempty" yaml:"icon_url,omitempty"`

	// Classification properties are carried for external filtering only.
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Rarity   string `json:"rarity,omitempty" yaml:"rarity,omitempty"`
	Wear     string `json:"wear,omitempty" yaml:"wear,omitempty"`
	Hero     string `json:"hero,omitempty" yaml:"hero,omitempty"`
	StatTrak bool   `json:"stattrak,omitempty" yaml:"stattrak,omitempty"`
}

// Key returns the appid:market_hash_name identity used in every cache key.
func (i Item) Key() string {
	return fmt.Sprintf("%s:%s", i.AppID, i.MarketHashName)
}

// DisplayName returns Name, falling back to MarketHashName.
func (i Item) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.MarketHashName
}

// Validate checks that the identity fields are set.
func (i Item) Validate() error {
	if i.AppID == "" {
		return errors.Errorf("item %q: appid is required", i.MarketHashName)
	}
	if i.MarketHashName == "" {
		return errors.Errorf("item with appid %s: market_hash_name is required", i.AppID)
	}
	return nil
}

// ParseItemKey builds an item from its "appid:market_hash_name" key.
// Only the first colon separates the parts, hash names may contain colons.
func ParseItemKey(key string) (Item, error) {
	appID, name, ok := strings.Cut(strings.TrimSpace(key), ":")
	if !ok {
		return Item{}, errors.Errorf("item %q: expected appid:market_hash_name", key)
	}
	item := Item{AppID: appID, MarketHashName: name}
	return item, item.Validate()
}
