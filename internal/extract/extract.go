// Package extract turns listing pages into opportunity records using a fixed
// set of structural selectors and text patterns.
package extract

import (
	"bytes"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/scholarship-finder/internal/metrics"
	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

const (
	// PerSelectorLimit bounds how many containers each selector contributes.
	PerSelectorLimit = 20
	// MaxRecords caps the records produced by one page.
	MaxRecords = 25
	// DescriptionMinLen is the shortest text block accepted as a description.
	DescriptionMinLen = 50
	// DescriptionMaxLen truncates descriptions, in runes.
	DescriptionMaxLen = 400
	// DeadlineElementMaxLen bounds text taken from deadline-classed elements.
	DeadlineElementMaxLen = 50
	// MinEnhanceTitleLen is the shortest title that gets qualifiers appended.
	MinEnhanceTitleLen = 5
)

// containerSelector matches elements by tag and by a pattern over the class attribute.
type containerSelector struct {
	tags  string
	class *regexp.Regexp
}

var containerSelectors = []containerSelector{
	{tags: "div, article, section", class: regexp.MustCompile(`(?i)scholarship|grant|award|funding|opportunity`)},
	{tags: "div, article", class: regexp.MustCompile(`(?i)result|item|card|listing|program`)},
	{tags: "li", class: regexp.MustCompile(`(?i)scholarship|grant|opportunity`)},
}

var (
	longLine = regexp.MustCompile(`.{50,}`)

	deadlinePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)deadline[:\s]*([a-zA-Z]+\s+\d{1,2},?\s+\d{4})`),
		regexp.MustCompile(`(?i)due[:\s]*([a-zA-Z]+\s+\d{1,2},?\s+\d{4})`),
		regexp.MustCompile(`(?i)apply\s+by[:\s]*([a-zA-Z]+\s+\d{1,2},?\s+\d{4})`),
		regexp.MustCompile(`(?i)closes[:\s]*([a-zA-Z]+\s+\d{1,2},?\s+\d{4})`),
		regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`),
		regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`),
	}
	deadlineClass = regexp.MustCompile(`(?i)deadline|due|closes`)

	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$[\d,]+(?:\.\d{2})?`),
		regexp.MustCompile(`(?i)up to \$[\d,]+`),
		regexp.MustCompile(`(?i)[\d,]+ dollars?`),
		regexp.MustCompile(`(?i)full tuition`),
		regexp.MustCompile(`(?i)partial tuition`),
	}
)

var (
	fieldCues       = []string{"engineering", "medicine", "business", "arts", "science", "technology", "law", "education"}
	demographicCues = []string{"women", "minority", "international", "veterans", "first-generation"}
)

// Extractor is stateless apart from its clock and safe for concurrent use.
type Extractor struct {
	now    func() time.Time
	logger *zap.Logger
}

// New builds an Extractor. clock and logger may be nil.
func New(clock opportunity.Clock, logger *zap.Logger) *Extractor {
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{now: now, logger: logger}
}

// Extract parses content and returns at most MaxRecords records. Containers
// without a heading are skipped. Unparseable content yields no records.
func (e *Extractor) Extract(content []byte, sourceURL string, goal opportunity.GoalType) []opportunity.Record {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		e.logger.Debug("unparseable page", zap.String("url", sourceURL), zap.Error(err))
		return nil
	}
	doc.Find("script, style").Remove()

	captured := e.now()
	seen := make(map[*html.Node]struct{})
	var out []opportunity.Record
	for _, sel := range containerSelectors {
		matches := doc.Find(sel.tags).FilterFunction(func(_ int, s *goquery.Selection) bool {
			class, ok := s.Attr("class")
			return ok && sel.class.MatchString(class)
		})
		if matches.Length() > PerSelectorLimit {
			matches = matches.Slice(0, PerSelectorLimit)
		}
		matches.Each(func(_ int, s *goquery.Selection) {
			node := s.Nodes[0]
			if _, dup := seen[node]; dup {
				return
			}
			seen[node] = struct{}{}
			if rec, ok := e.container(s, sourceURL, goal, captured); ok {
				out = append(out, rec)
			}
		})
	}
	if len(out) > MaxRecords {
		out = out[:MaxRecords]
	}
	if len(out) == 0 && ScriptShell(content) {
		e.logger.Info("page is rendered client side; nothing extracted", zap.String("url", sourceURL))
	}
	metrics.ObserveExtracted(metrics.SanitizeSite(sourceURL), len(out))
	return out
}

func (e *Extractor) container(s *goquery.Selection, sourceURL string, goal opportunity.GoalType, captured time.Time) (opportunity.Record, bool) {
	heading := s.Find("h1, h2, h3, h4, h5, h6").First()
	if heading.Length() == 0 {
		return opportunity.Record{}, false
	}
	title := collapse(heading.Text())
	if title == "" {
		return opportunity.Record{}, false
	}
	text := s.Text()
	enhanced, qualifiers := EnhanceTitle(title, text)
	return opportunity.Record{
		Title:        enhanced,
		Description:  Description(s),
		Amount:       Amount(text),
		Deadline:     Deadline(s),
		Category:     string(goal),
		Source:       sourceURL,
		Keywords:     opportunity.NormalizeKeywords(qualifiers),
		GoalType:     goal,
		Priority:     1,
		CreatedAt:    captured,
		LastVerified: captured,
		IsActive:     true,
	}, true
}

// Description returns the first p, div or span inside s whose own text has a
// line of at least DescriptionMinLen characters, truncated to DescriptionMaxLen runes.
func Description(s *goquery.Selection) string {
	desc := opportunity.PlaceholderDescription
	s.Find("p, div, span").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		own, ok := soleString(el.Nodes[0])
		if !ok || !longLine.MatchString(own) {
			return true
		}
		desc = truncateRunes(strings.TrimSpace(el.Text()), DescriptionMaxLen)
		return false
	})
	return desc
}

// soleString follows single-child chains down to a text node.
func soleString(n *html.Node) (string, bool) {
	for n != nil {
		if n.Type == html.TextNode {
			return n.Data, true
		}
		if n.FirstChild == nil || n.FirstChild != n.LastChild {
			return "", false
		}
		n = n.FirstChild
	}
	return "", false
}

// Deadline searches the container text for labelled dates, then bare dates,
// then short deadline-classed or <time> elements.
func Deadline(s *goquery.Selection) string {
	text := s.Text()
	for _, re := range deadlinePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	candidates := []*goquery.Selection{
		s.Find("span, div, p").FilterFunction(func(_ int, el *goquery.Selection) bool {
			class, ok := el.Attr("class")
			return ok && deadlineClass.MatchString(class)
		}).First(),
		s.Find("time").First(),
	}
	for _, el := range candidates {
		if el.Length() == 0 {
			continue
		}
		t := strings.TrimSpace(el.Text())
		if t != "" && utf8.RuneCountInString(t) < DeadlineElementMaxLen {
			return t
		}
	}
	return opportunity.PlaceholderDeadline
}

// Amount returns the first currency or tuition phrase found in text.
func Amount(text string) string {
	for _, re := range amountPatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return opportunity.PlaceholderAmount
}

// EnhanceTitle appends up to two qualifiers (degree level, field of study,
// demographic focus) found in the container text. It returns the new title and
// the qualifiers used.
func EnhanceTitle(title, text string) (string, []string) {
	if utf8.RuneCountInString(strings.TrimSpace(title)) < MinEnhanceTitleLen {
		return title, nil
	}
	lower := strings.ToLower(text)
	var qualifiers []string
	switch {
	case containsAny(lower, "undergraduate", "bachelor"):
		qualifiers = append(qualifiers, "Undergraduate")
	case containsAny(lower, "graduate", "master", "phd", "doctoral"):
		qualifiers = append(qualifiers, "Graduate")
	}
	if cue, ok := firstCue(lower, fieldCues); ok {
		qualifiers = append(qualifiers, titleCase(cue))
	}
	if cue, ok := firstCue(lower, demographicCues); ok {
		qualifiers = append(qualifiers, titleCase(cue))
	}
	if len(qualifiers) == 0 {
		return title, nil
	}
	if len(qualifiers) > 2 {
		qualifiers = qualifiers[:2]
	}
	return title + " (" + strings.Join(qualifiers, ", ") + ")", qualifiers
}

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func firstCue(text string, cues []string) (string, bool) {
	for _, c := range cues {
		if strings.Contains(text, c) {
			return c, true
		}
	}
	return "", false
}

// titleCase upper-cases the first letter of every hyphen or space separated word.
func titleCase(s string) string {
	b := []byte(s)
	upper := true
	for i, c := range b {
		if upper && c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
		upper = c == ' ' || c == '-'
	}
	return string(b)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
