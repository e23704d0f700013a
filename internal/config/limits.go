package config

import (
	"time"
)

// Limits are the content and paging bounds handed to each service at construction.
type Limits struct {
	MoltCharLimit       int
	EditWindow          time.Duration
	MoltsPerPage        int
	NotifsPerPage       int
	TrendingWindowDays  int
	TrendingLimit       int
	RecommendedLimit    int
	APIDefaultMoltLimit int
	APIMaxMoltLimit     int
	APIDefaultCrabLimit int
	APIMaxCrabLimit     int
	MaxDeveloperKeys    int
	MaxAccessTokens     int
	Profile             ProfileLimits
}

// ProfileLimits bound the free-text fields of a crab's profile, in runes.
type ProfileLimits struct {
	DisplayName int
	Description int
	Location    int
	Website     int
	Bio         map[string]int
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		MoltCharLimit:       280,
		EditWindow:          5 * time.Minute,
		MoltsPerPage:        20,
		NotifsPerPage:       20,
		TrendingWindowDays:  7,
		TrendingLimit:       3,
		RecommendedLimit:    3,
		APIDefaultMoltLimit: 10,
		APIMaxMoltLimit:     50,
		APIDefaultCrabLimit: 10,
		APIMaxCrabLimit:     50,
		MaxDeveloperKeys:    5,
		MaxAccessTokens:     5,
		Profile: ProfileLimits{
			DisplayName: 64,
			Description: 512,
			Location:    128,
			Website:     512,
			Bio: map[string]int{
				"age":       32,
				"emoji":     32,
				"jam":       256,
				"obsession": 256,
				"pronouns":  64,
				"quote":     256,
				"remember":  256,
			},
		},
	}
}

// Limits derives service limits from the loaded configuration.
func (c *Config) Limits() Limits {
	l := DefaultLimits()
	if c.MoltCharLimit > 0 {
		l.MoltCharLimit = c.MoltCharLimit
	}
	l.EditWindow = time.Duration(c.MinutesEditable) * time.Minute
	if c.MoltsPerPage > 0 {
		l.MoltsPerPage = c.MoltsPerPage
	}
	if c.NotifsPerPage > 0 {
		l.NotifsPerPage = c.NotifsPerPage
	}
	if c.APIDefaultMoltLimit > 0 {
		l.APIDefaultMoltLimit = c.APIDefaultMoltLimit
	}
	if c.APIMaxMoltLimit > 0 {
		l.APIMaxMoltLimit = c.APIMaxMoltLimit
	}
	if c.APIDefaultCrabLimit > 0 {
		l.APIDefaultCrabLimit = c.APIDefaultCrabLimit
	}
	if c.APIMaxCrabLimit > 0 {
		l.APIMaxCrabLimit = c.APIMaxCrabLimit
	}
	if c.APIMaxDeveloperKeys > 0 {
		l.MaxDeveloperKeys = c.APIMaxDeveloperKeys
	}
	if c.APIMaxAccessTokens > 0 {
		l.MaxAccessTokens = c.APIMaxAccessTokens
	}
	return l
}

// Milestone awards Title when a count lands exactly on Count.
type Milestone struct {
	Count int64
	Title string
}

// AwardRules are the declarative trophy triggers.
type AwardRules struct {
	FollowerMilestones []Milestone
	LikeMilestones     []Milestone
	// MoltMilestones award at or above Count, except FirstMoltTitle which needs exactly one.
	MoltMilestones   []Milestone
	FirstMoltTitle   string
	VerifiedFollower string
	// Follower ratio awards apply once a crab follows at least RatioMinFollowing crabs.
	RatioMinFollowing int64
	RatioMilestones   []Milestone
	TagTrophies       map[string]string
	LikePhrases       []string
	LikeTags          []string
	LikeTrophy        string
	AnniversaryTitle  string
}

// DefaultAwardRules returns the stock trophy triggers.
func DefaultAwardRules() AwardRules {
	return AwardRules{
		FollowerMilestones: []Milestone{
			{Count: 1, Title: "Social Newbie"},
			{Count: 10, Title: "Mingler"},
			{Count: 100, Title: "Life of the Party"},
			{Count: 1000, Title: "Celebrity"},
		},
		LikeMilestones: []Milestone{
			{Count: 10, Title: "Dopamine Hit"},
			{Count: 100, Title: "Dopamine Addict"},
			{Count: 1000, Title: "Full on Junkie"},
		},
		MoltMilestones: []Milestone{
			{Count: 1000, Title: "Loudmouth"},
			{Count: 10000, Title: "Please Stop"},
		},
		FirstMoltTitle:    "Baby Crab",
		VerifiedFollower:  "I Captivated the Guy",
		RatioMinFollowing: 20,
		RatioMilestones: []Milestone{
			{Count: 20, Title: "20/20"},
			{Count: 100, Title: "The Golden Ratio"},
		},
		TagTrophies: map[string]string{
			"420":                 "Pineapple Express",
			"waaahhhh":            "Mega Freakoid",
			"lolcat":              "i can haz cheezburger?",
			"fffffffuuuuuuuuuuuu": "f7u12",
			"1985":                "Back to the Future",
		},
		LikePhrases:      []string{"seth rogen"},
		LikeTags:         []string{"sethrogen"},
		LikeTrophy:       "Rogen Out of Control",
		AnniversaryTitle: "One Year",
	}
}
