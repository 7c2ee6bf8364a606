package domain

// ProfileType selects the weighting scheme used to blend holding
// relevance with classified impact.
type ProfileType string

const (
	ProfileHoldingsHeavy ProfileType = "holdings_heavy"
	ProfileBalanced      ProfileType = "balanced"
	ProfileImpactHeavy   ProfileType = "impact_heavy"
)

// ProfileWeights blends holding relevance and impact into the
// profile-adjusted score.
type ProfileWeights struct {
	Holdings float64
	Impact   float64
}

var profileWeights = map[ProfileType]ProfileWeights{
	ProfileHoldingsHeavy: {Holdings: 0.7, Impact: 0.3},
	ProfileBalanced:      {Holdings: 0.5, Impact: 0.5},
	ProfileImpactHeavy:   {Holdings: 0.3, Impact: 0.7},
}

// WeightsFor returns the blend weights for a profile. Unknown profiles
// fall back to the balanced blend.
func WeightsFor(p ProfileType) ProfileWeights {
	if w, ok := profileWeights[p]; ok {
		return w
	}

	return profileWeights[ProfileBalanced]
}

// ValidProfile reports whether p names a known profile type.
func ValidProfile(p ProfileType) bool {
	_, ok := profileWeights[p]
	return ok
}
