package catalog

import (
	"context"
	"fmt"

	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

type seed struct {
	title       string
	description string
	amount      string
	deadline    string
	category    string
	source      string
	country     string
	keywords    string
	goal        opportunity.GoalType
	priority    int
}

var seeds = []seed{
	{
		title:       "Makerere University Excellence Scholarship",
		description: "Merit-based scholarship for outstanding Ugandan students pursuing undergraduate degrees at Makerere University",
		amount:      "Full tuition + stipend",
		deadline:    "March 15, 2025",
		category:    "Academic Excellence",
		source:      "https://www.mak.ac.ug/scholarships",
		country:     "Uganda",
		keywords:    "undergraduate,excellence,merit,makerere",
		goal:        opportunity.GoalStudent,
		priority:    3,
	},
	{
		title:       "Uganda Government Scholarship Scheme",
		description: "Government-sponsored scholarships for Ugandan citizens in STEM fields",
		amount:      "Full tuition + living allowance",
		deadline:    "April 30, 2025",
		category:    "Government",
		source:      "https://www.education.go.ug/scholarships",
		country:     "Uganda",
		keywords:    "government,stem,science,engineering,technology",
		goal:        opportunity.GoalStudent,
		priority:    3,
	},
	{
		title:       "Kampala International University Bursary",
		description: "Need-based financial assistance for deserving students at KIU",
		amount:      "50-75% tuition coverage",
		deadline:    "June 1, 2025",
		category:    "Financial Aid",
		source:      "https://www.kiu.ac.ug/bursaries",
		country:     "Uganda",
		keywords:    "financial aid,need-based,undergraduate",
		goal:        opportunity.GoalStudent,
		priority:    3,
	},
	{
		title:       "Uganda Christian University Scholarship",
		description: "Academic and leadership scholarships for UCU students",
		amount:      "Varies",
		deadline:    "February 28, 2025",
		category:    "Leadership",
		source:      "https://www.ucu.ac.ug/scholarships",
		country:     "Uganda",
		keywords:    "leadership,academic,christian,undergraduate",
		goal:        opportunity.GoalStudent,
		priority:    3,
	},
	{
		title:       "East African Community Scholarship",
		description: "Regional scholarships for students from EAC member countries",
		amount:      "$5,000 - $15,000",
		deadline:    "May 15, 2025",
		category:    "Regional",
		source:      "https://www.eac.int/scholarships",
		country:     "East Africa",
		keywords:    "regional,east africa,undergraduate,graduate",
		goal:        opportunity.GoalStudent,
		priority:    2,
	},
	{
		title:       "Mastercard Foundation Scholars Program",
		description: "Comprehensive scholarship for academically talented African students",
		amount:      "Full scholarship + mentorship",
		deadline:    "Rolling applications",
		category:    "Foundation",
		source:      "https://mastercardfdn.org/scholars/",
		country:     "Africa",
		keywords:    "mastercard,foundation,african,leadership,undergraduate,graduate",
		goal:        opportunity.GoalStudent,
		priority:    2,
	},
	{
		title:       "African Union Scholarship Programme",
		description: "Continental scholarship program for African students",
		amount:      "Full tuition + allowances",
		deadline:    "March 31, 2025",
		category:    "Continental",
		source:      "https://au.int/en/scholarships",
		country:     "Africa",
		keywords:    "african union,continental,graduate,research",
		goal:        opportunity.GoalStudent,
		priority:    2,
	},
	{
		title:       "Commonwealth Scholarships",
		description: "UK government scholarships for Commonwealth country citizens including Uganda",
		amount:      "Full funding",
		deadline:    "October 31, 2025",
		category:    "International",
		source:      "https://cscuk.fcdo.gov.uk/",
		country:     "International",
		keywords:    "commonwealth,uk,graduate,research,uganda",
		goal:        opportunity.GoalStudent,
		priority:    1,
	},
	{
		title:       "Chevening Scholarships",
		description: "UK government's global scholarship programme for future leaders",
		amount:      "Full funding + networking",
		deadline:    "November 7, 2025",
		category:    "Leadership",
		source:      "https://www.chevening.org/",
		country:     "International",
		keywords:    "chevening,uk,leadership,graduate,masters",
		goal:        opportunity.GoalStudent,
		priority:    1,
	},
	{
		title:       "Fulbright Foreign Student Program",
		description: "US government scholarship for international students including Ugandans",
		amount:      "Full funding",
		deadline:    "May 15, 2025",
		category:    "International",
		source:      "https://www.fulbright.org/",
		country:     "International",
		keywords:    "fulbright,usa,graduate,research,exchange",
		goal:        opportunity.GoalStudent,
		priority:    1,
	},
	{
		title:       "YALI Regional Leadership Center Scholarship",
		description: "Leadership development program for young African entrepreneurs",
		amount:      "Full program coverage",
		deadline:    "Quarterly applications",
		category:    "Entrepreneurship",
		source:      "https://yali.state.gov/",
		country:     "Africa",
		keywords:    "entrepreneurship,leadership,young,african,business",
		goal:        opportunity.GoalEntrepreneur,
		priority:    2,
	},
	{
		title:       "Tony Elumelu Foundation Entrepreneurship Programme",
		description: "Seed funding and mentorship for African entrepreneurs",
		amount:      "$5,000 seed funding",
		deadline:    "January 31, 2025",
		category:    "Entrepreneurship",
		source:      "https://www.tonyelumelufoundation.org/",
		country:     "Africa",
		keywords:    "entrepreneurship,startup,seed funding,african,business",
		goal:        opportunity.GoalEntrepreneur,
		priority:    2,
	},
	{
		title:       "African Institute for Mathematical Sciences Scholarships",
		description: "Graduate scholarships in mathematical sciences for African students",
		amount:      "Full funding",
		deadline:    "February 28, 2025",
		category:    "Research",
		source:      "https://www.aims.ac.za/",
		country:     "Africa",
		keywords:    "mathematics,science,research,graduate,african",
		goal:        opportunity.GoalResearcher,
		priority:    2,
	},
	{
		title:       "UNESCO-Aschberg Programme for Artists",
		description: "Residency program for young artists from developing countries",
		amount:      "Residency + stipend",
		deadline:    "Rolling applications",
		category:    "Arts",
		source:      "https://en.unesco.org/",
		country:     "International",
		keywords:    "arts,artist,residency,unesco,cultural",
		goal:        opportunity.GoalArtist,
		priority:    1,
	},
	{
		title:       "Acumen Academy Fellowships",
		description: "Leadership development for social sector professionals",
		amount:      "Program coverage",
		deadline:    "Multiple deadlines",
		category:    "Social Impact",
		source:      "https://acumenacademy.org/",
		country:     "International",
		keywords:    "social impact,nonprofit,leadership,development",
		goal:        opportunity.GoalNonprofit,
		priority:    1,
	},
}

// Seeds returns the built-in records, active and unverified.
func Seeds() []opportunity.Record {
	out := make([]opportunity.Record, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, opportunity.Record{
			Title:       s.title,
			Description: s.description,
			Amount:      s.amount,
			Deadline:    s.deadline,
			Category:    s.category,
			Source:      s.source,
			Country:     opportunity.Country(s.country),
			Keywords:    opportunity.SplitKeywords(s.keywords),
			GoalType:    s.goal,
			Priority:    s.priority,
			IsActive:    true,
		})
	}
	return out
}

// Populate writes the seed records when the store is empty, or always when
// force is set. It returns how many records were written.
func Populate(ctx context.Context, store opportunity.Store, force bool) (int, error) {
	if !force {
		n, err := store.Count(ctx, "")
		if err != nil {
			return 0, fmt.Errorf("count cached records: %w", err)
		}
		if n > 0 {
			return 0, nil
		}
	}
	records := Seeds()
	if err := store.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("write seed records: %w", err)
	}
	return len(records), nil
}
