// Package catalog holds the built-in source lists and the seed records used to
// pre-populate an empty cache.
package catalog

import (
	"strings"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

// International keys the country list of globally scoped listing sites.
const International = opportunity.International

// Catalog lists the known listing sites per country and per goal.
type Catalog struct {
	// Countries maps a country name to listing sites, most specific first.
	Countries map[string][]string
	// Goals maps a goal type to general listing sites.
	Goals map[opportunity.GoalType][]string
	// Reliable are the general sites tried by quick foreground top-ups.
	Reliable []string
	// InternationalExtra is how many International sites are appended to a
	// country scope.
	InternationalExtra int
	// CountryFirst is how many country sites lead a foreground top-up.
	CountryFirst int
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{
		Countries: map[string][]string{
			"Uganda": {
				"https://www.makerere.ac.ug/scholarships",
				"https://www.mubs.ac.ug/scholarships",
				"https://scholarships.gov.ug/",
				"https://www.opportunitiesforafricans.com/category/scholarships/uganda-scholarships/",
				"https://www.afterschoolafrica.com/scholarships/",
				"https://www.scholars4dev.com/category/scholarships/africa-scholarships/uganda-scholarships/",
				"https://www.studyportals.com/scholarships/uganda",
				"https://www.scholarshiproar.com/scholarships-in-uganda/",
			},
			"Nigeria": {
				"https://www.scholarships.com.ng/",
				"https://opportunitiesforafricans.com/category/scholarships/nigeria-scholarships/",
				"https://www.afterschoolafrica.com/scholarships/",
				"https://www.scholars4dev.com/category/scholarships/africa-scholarships/nigeria-scholarships/",
				"https://www.studyportals.com/scholarships/nigeria",
				"https://www.scholarshiproar.com/scholarships-in-nigeria/",
				"https://www.studentfinance.ng/",
			},
			"Kenya": {
				"https://www.opportunitiesforafricans.com/category/scholarships/kenya-scholarships/",
				"https://www.afterschoolafrica.com/scholarships/",
				"https://www.scholars4dev.com/category/scholarships/africa-scholarships/kenya-scholarships/",
				"https://www.studyportals.com/scholarships/kenya",
				"https://www.scholarshiproar.com/scholarships-in-kenya/",
				"https://www.helb.co.ke/",
			},
			"Ghana": {
				"https://www.opportunitiesforafricans.com/category/scholarships/ghana-scholarships/",
				"https://www.afterschoolafrica.com/scholarships/",
				"https://www.scholars4dev.com/category/scholarships/africa-scholarships/ghana-scholarships/",
				"https://www.studyportals.com/scholarships/ghana",
				"https://www.scholarshiproar.com/scholarships-in-ghana/",
				"https://getfund.gov.gh/",
			},
			"Tanzania": {
				"https://www.opportunitiesforafricans.com/category/scholarships/tanzania-scholarships/",
				"https://www.afterschoolafrica.com/scholarships/",
				"https://www.studyportals.com/scholarships/tanzania",
				"https://www.scholarshiproar.com/scholarships-in-tanzania/",
			},
			"South Africa": {
				"https://www.nsfas.org.za/",
				"https://www.scholarshipportal.com/scholarships/south-africa",
				"https://www.opportunitiesforafricans.com/category/scholarships/south-africa-scholarships/",
				"https://www.afterschoolafrica.com/scholarships/",
				"https://www.studyportals.com/scholarships/south-africa",
				"https://www.scholarshiproar.com/scholarships-in-south-africa/",
			},
			International: {
				"https://www.scholarships.com/financial-aid/college-scholarships/",
				"https://www.fastweb.com/college-scholarships",
				"https://www.petersons.com/college-search/scholarship-search.aspx",
				"https://www.opportunitiesforafricans.com/",
				"https://www.scholars4dev.com/",
				"https://www.scholarshipportal.com/",
				"https://www.afterschoolafrica.com/scholarships/",
				"https://www.studyportals.com/scholarships",
				"https://www.scholarshiproar.com/",
				"https://www.findamasters.com/funding/",
				"https://www.phdportal.com/funding/",
			},
		},
		Goals: map[opportunity.GoalType][]string{
			opportunity.GoalStudent: {
				"https://www.scholarships.com/financial-aid/college-scholarships/",
				"https://www.fastweb.com/college-scholarships",
				"https://www.petersons.com/college-search/scholarship-search.aspx",
				"https://www.unigo.com/scholarships",
				"https://www.chegg.com/scholarships",
				"https://www.cappex.com/scholarships",
				"https://www.niche.com/colleges/scholarships/",
				"https://studentaid.gov/understand-aid/types/scholarships",
			},
			opportunity.GoalEntrepreneur: {
				"https://www.tonyelumelufoundation.org/",
				"https://yali.state.gov/",
				"https://www.opportunitiesforafricans.com/category/entrepreneurship/",
			},
			opportunity.GoalResearcher: {
				"https://www.findamasters.com/funding/",
				"https://www.phdportal.com/funding/",
				"https://www.aims.ac.za/",
			},
			opportunity.GoalArtist: {
				"https://en.unesco.org/",
				"https://www.opportunitiesforafricans.com/category/arts/",
			},
			opportunity.GoalNonprofit: {
				"https://acumenacademy.org/",
				"https://www.opportunitiesforafricans.com/category/fellowships/",
			},
		},
		Reliable: []string{
			"https://www.scholarships.com/",
			"https://www.fastweb.com/",
			"https://www.petersons.com/",
		},
		InternationalExtra: 3,
		CountryFirst:       2,
	}
}

// CountrySites returns the sites listed for country, matched case-insensitively.
func (c *Catalog) CountrySites(country string) []string {
	country = strings.TrimSpace(country)
	if country == "" {
		return nil
	}
	for name, sites := range c.Countries {
		if strings.EqualFold(name, country) {
			return sites
		}
	}
	return nil
}

// ForegroundSites returns up to n sites for a quick top-up: the leading
// country sites followed by the reliable general sites.
func (c *Catalog) ForegroundSites(country string, n int) []string {
	var sites []string
	countrySites := c.CountrySites(country)
	if len(countrySites) > c.CountryFirst {
		countrySites = countrySites[:c.CountryFirst]
	}
	sites = append(sites, countrySites...)
	sites = append(sites, c.Reliable...)
	return limit(unique(sites), n)
}

// ScopeSites returns every site a full refresh of (goal, country) visits.
// A country scope covers its own sites plus a few International ones; without
// a country the goal sites and the International list are used.
func (c *Catalog) ScopeSites(goal opportunity.GoalType, country string) []string {
	intl := c.Countries[International]
	var sites []string
	if countrySites := c.CountrySites(country); len(countrySites) > 0 {
		sites = append(sites, countrySites...)
		sites = append(sites, limit(intl, c.InternationalExtra)...)
		return unique(sites)
	}
	if goal != "" {
		sites = append(sites, c.Goals[goal]...)
	} else {
		for _, g := range opportunity.Goals {
			sites = append(sites, c.Goals[g]...)
		}
	}
	sites = append(sites, intl...)
	return unique(sites)
}

func limit(sites []string, n int) []string {
	if n >= 0 && len(sites) > n {
		return sites[:n]
	}
	return sites
}

func unique(sites []string) []string {
	seen := make(map[string]struct{}, len(sites))
	out := make([]string, 0, len(sites))
	for _, s := range sites {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// MergeHints appends hint URLs not already present in sites.
func MergeHints(sites []string, hints []opportunity.SourceHint) []string {
	out := append([]string(nil), sites...)
	for _, h := range hints {
		out = append(out, h.URL)
	}
	return unique(out)
}
