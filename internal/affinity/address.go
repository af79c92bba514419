package affinity

// AddressTerm is how the character refers to the user.
type AddressTerm string

const (
	Guest           AddressTerm = "손님"
	Friend          AddressTerm = "친구"
	CherishedFriend AddressTerm = "소중한 친구"
)

const (
	friendThreshold    = 30
	cherishedThreshold = 70
)

// ResolveAddressTerm maps a score to its honorific tier.
func ResolveAddressTerm(score int) AddressTerm {
	switch {
	case score < friendThreshold:
		return Guest
	case score < cherishedThreshold:
		return Friend
	default:
		return CherishedFriend
	}
}
