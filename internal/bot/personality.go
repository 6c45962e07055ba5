package bot

import "github.com/freeeve/divine-conquest/api/pkg/conquest"

// Level sets how ruthless an AI plays. It scales the evaluation's threat
// scanning; Nice AIs are effectively blind to danger and opportunity.
type Level int

const (
	LevelNice Level = iota
	LevelRude
	LevelMean
)

// LevelForDifficulty maps the stored difficulty string onto a Level.
// Unknown or empty strings get the middle setting.
func LevelForDifficulty(difficulty string) Level {
	switch difficulty {
	case "Nice":
		return LevelNice
	case "Hard":
		return LevelMean
	default:
		return LevelRude
	}
}

// Personality shapes what an AI spends faith on. SoldierEagerness scales the
// force-disparity trigger for recruiting; UpgradePreference is walked front
// to back for the next temple purchase.
type Personality struct {
	Name              string
	SoldierEagerness  float64
	UpgradePreference []conquest.Upgrade
}

var personalities = []Personality{
	{
		Name:             "Defender",
		SoldierEagerness: 0.7,
		UpgradePreference: []conquest.Upgrade{
			conquest.UpgradeEarth, conquest.UpgradeWater, conquest.UpgradeAir, conquest.UpgradeFire,
		},
	},
	{
		Name:             "Economist",
		SoldierEagerness: 0.5,
		UpgradePreference: []conquest.Upgrade{
			conquest.UpgradeWater, conquest.UpgradeEarth, conquest.UpgradeAir, conquest.UpgradeFire,
		},
	},
	{
		Name:             "Aggressor",
		SoldierEagerness: 0.85,
		UpgradePreference: []conquest.Upgrade{
			conquest.UpgradeFire, conquest.UpgradeAir, conquest.UpgradeWater, conquest.UpgradeEarth,
		},
	},
	{
		// All faith goes to the army, always.
		Name:             "Berserker",
		SoldierEagerness: 1.0,
	},
}

// PersonalityByName returns the named personality, falling back to Defender.
func PersonalityByName(name string) Personality {
	for _, p := range personalities {
		if p.Name == name {
			return p
		}
	}
	return personalities[0]
}

// PersonalityNames lists the known personalities in a stable order.
func PersonalityNames() []string {
	names := make([]string, len(personalities))
	for i, p := range personalities {
		names[i] = p.Name
	}
	return names
}
