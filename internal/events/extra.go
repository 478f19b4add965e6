package events

import "encoding/json"

// Extra is category-specific event data. The concrete types are
// *CommunityDay, *Spotlight, *RaidBattles and *UnknownExtra.
type Extra interface {
	// Key is the extraData key the value was decoded from.
	Key() string
	isExtra()
}

const (
	KeyCommunityDay = "communityday"
	KeySpotlight    = "spotlight"
	KeyRaidBattles  = "raidbattles"
)

type Species struct {
	Name       string `json:"name"`
	Image      string `json:"image"`
	CanBeShiny bool   `json:"canBeShiny"`
}

type Bonus struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

type CommunityDay struct {
	Spawns  []Species `json:"spawns"`
	Bonuses []Bonus   `json:"bonuses"`
	Shinies []Species `json:"shinies"`
}

type Spotlight struct {
	Name       string    `json:"name"`
	Image      string    `json:"image"`
	CanBeShiny bool      `json:"canBeShiny"`
	Bonus      string    `json:"bonus"`
	List       []Species `json:"list"`
}

type RaidBattles struct {
	Bosses  []Species `json:"bosses"`
	Shinies []Species `json:"shinies"`
}

// UnknownExtra keeps data for keys without a dedicated type, and for known
// keys whose payload did not match the expected shape.
type UnknownExtra struct {
	Name string
	Raw  json.RawMessage
}

func (*CommunityDay) Key() string   { return KeyCommunityDay }
func (*Spotlight) Key() string      { return KeySpotlight }
func (*RaidBattles) Key() string    { return KeyRaidBattles }
func (u *UnknownExtra) Key() string { return u.Name }

func (*CommunityDay) isExtra() {}
func (*Spotlight) isExtra()    {}
func (*RaidBattles) isExtra()  {}
func (*UnknownExtra) isExtra() {}

func decodeExtra(key string, raw json.RawMessage) Extra {
	var (
		v   Extra
		err error
	)
	switch key {
	case KeyCommunityDay:
		x := &CommunityDay{}
		err = json.Unmarshal(raw, x)
		v = x
	case KeySpotlight:
		x := &Spotlight{}
		err = json.Unmarshal(raw, x)
		v = x
	case KeyRaidBattles:
		x := &RaidBattles{}
		err = json.Unmarshal(raw, x)
		v = x
	default:
		return &UnknownExtra{Name: key, Raw: raw}
	}
	if err != nil {
		return &UnknownExtra{Name: key, Raw: raw}
	}
	return v
}
