package scoring

// Tier is a human-readable band of the numeric score.
type Tier string

// Tiers follow the conventional consumer credit bands.
const (
	TierPoor      Tier = "poor"      // 300-579
	TierFair      Tier = "fair"      // 580-669
	TierGood      Tier = "good"      // 670-739
	TierVeryGood  Tier = "very_good" // 740-799
	TierExcellent Tier = "excellent" // 800-850
)

// TierFor returns the band containing score.
func TierFor(score int) Tier {
	switch {
	case score >= 800:
		return TierExcellent
	case score >= 740:
		return TierVeryGood
	case score >= 670:
		return TierGood
	case score >= 580:
		return TierFair
	default:
		return TierPoor
	}
}
