// Package browse holds the visitor-facing view of the catalog: searching,
// filtering by category or tag, pagination, tag clouds and related templates.
//
// The functions are pure. They work on a catalog snapshot and never touch
// the counters.
package browse

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/CTAG07/Vitrine/pkg/catalog"
)

const (
	DefaultPerPage = 6
	DefaultTopTags = 8
	MaxRelated     = 3
	// AllCategories matches every category.
	AllCategories = "all"
)

// Query is the visitor's current search state.
type Query struct {
	Search   string `json:"search"`
	Category string `json:"category"`
	Tag      string `json:"tag"`
	Page     int    `json:"page"`
	PerPage  int    `json:"per_page"`
}

// ParseQuery reads a Query from URL parameters q, category, tag and page.
// Missing or malformed values fall back to defaults.
func ParseQuery(v url.Values, perPage int) Query {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	page, err := strconv.Atoi(v.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	category := strings.TrimSpace(v.Get("category"))
	if category == "" {
		category = AllCategories
	}
	return Query{
		Search:   strings.TrimSpace(v.Get("q")),
		Category: category,
		Tag:      strings.TrimSpace(v.Get("tag")),
		Page:     page,
		PerPage:  perPage,
	}
}

// Values encodes the query back into URL parameters, omitting defaults.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("q", q.Search)
	}
	if q.Category != "" && q.Category != AllCategories {
		v.Set("category", q.Category)
	}
	if q.Tag != "" {
		v.Set("tag", q.Tag)
	}
	if q.Page > 1 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	return v
}

// WithPage returns a copy of q on another page.
func (q Query) WithPage(page int) Query {
	q.Page = page
	return q
}

// WithTag returns a copy of q filtering by tag. Selecting the active tag
// again clears it. Choosing a tag resets the category and the page.
func (q Query) WithTag(tag string) Query {
	if strings.EqualFold(q.Tag, tag) {
		q.Tag = ""
	} else {
		q.Tag = tag
		q.Category = AllCategories
	}
	q.Page = 1
	return q
}

// Matches reports whether t satisfies the search, category and tag filters.
func (q Query) Matches(t catalog.Template) bool {
	search := strings.ToLower(q.Search)
	matchesSearch := strings.Contains(strings.ToLower(t.Title), search) ||
		strings.Contains(strings.ToLower(t.Description), search)
	if !matchesSearch {
		for _, tag := range t.Tags {
			if strings.Contains(strings.ToLower(tag), search) {
				matchesSearch = true
				break
			}
		}
	}

	matchesCategory := q.Category == "" || q.Category == AllCategories || t.Category == q.Category

	matchesTag := q.Tag == ""
	for _, tag := range t.Tags {
		if matchesTag {
			break
		}
		matchesTag = strings.EqualFold(tag, q.Tag)
	}

	return matchesSearch && matchesCategory && matchesTag
}

// Filter returns the templates matching q, in catalog order.
func Filter(templates []catalog.Template, q Query) []catalog.Template {
	out := make([]catalog.Template, 0, len(templates))
	for _, t := range templates {
		if q.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// Page is one page of filtered results.
type Page struct {
	Templates  []catalog.Template `json:"templates"`
	Query      Query              `json:"query"`
	Total      int                `json:"total"`
	TotalPages int                `json:"total_pages"`
}

// HasPrev reports whether a previous page exists.
func (p Page) HasPrev() bool { return p.Query.Page > 1 }

// HasNext reports whether a next page exists.
func (p Page) HasNext() bool { return p.Query.Page < p.TotalPages }

// Pages lists the page numbers 1..TotalPages.
func (p Page) Pages() []int {
	pages := make([]int, p.TotalPages)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}

// Run filters templates by q and cuts out the requested page. The page number
// is clamped to the available range.
func Run(templates []catalog.Template, q Query) Page {
	if q.PerPage <= 0 {
		q.PerPage = DefaultPerPage
	}
	filtered := Filter(templates, q)
	totalPages := (len(filtered) + q.PerPage - 1) / q.PerPage

	if q.Page > totalPages {
		q.Page = totalPages
	}
	if q.Page < 1 {
		q.Page = 1
	}

	start := min((q.Page-1)*q.PerPage, len(filtered))
	end := min(start+q.PerPage, len(filtered))
	return Page{
		Templates:  filtered[start:end],
		Query:      q,
		Total:      len(filtered),
		TotalPages: totalPages,
	}
}

// Categories returns the distinct non-empty categories in first-seen order.
func Categories(templates []catalog.Template) []string {
	seen := make(map[string]struct{})
	var cats []string
	for _, t := range templates {
		if t.Category == "" {
			continue
		}
		if _, ok := seen[t.Category]; ok {
			continue
		}
		seen[t.Category] = struct{}{}
		cats = append(cats, t.Category)
	}
	return cats
}

// TopTags returns up to limit tags ordered by how many templates use them.
// Ties keep first-seen order.
func TopTags(templates []catalog.Template, limit int) []string {
	if limit <= 0 {
		limit = DefaultTopTags
	}
	counts := make(map[string]int)
	var order []string
	for _, t := range templates {
		for _, tag := range t.Tags {
			if _, ok := counts[tag]; !ok {
				order = append(order, tag)
			}
			counts[tag]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

// Related returns up to limit other templates sharing tags with the one in
// folder, most shared tags first. Ties keep catalog order.
func Related(templates []catalog.Template, folder string, limit int) []catalog.Template {
	if limit <= 0 {
		limit = MaxRelated
	}
	var current *catalog.Template
	for i := range templates {
		if templates[i].Folder == folder {
			current = &templates[i]
			break
		}
	}
	if current == nil || len(current.Tags) == 0 {
		return nil
	}
	currentTags := make(map[string]struct{}, len(current.Tags))
	for _, tag := range current.Tags {
		currentTags[tag] = struct{}{}
	}

	type scored struct {
		t     catalog.Template
		score int
	}
	var candidates []scored
	for _, t := range templates {
		if t.Folder == folder {
			continue
		}
		score := 0
		for _, tag := range t.Tags {
			if _, ok := currentTags[tag]; ok {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{t: t, score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	related := make([]catalog.Template, 0, min(limit, len(candidates)))
	for _, c := range candidates {
		if len(related) == limit {
			break
		}
		related = append(related, c.t)
	}
	return related
}

// Countdown is the time left until a target date.
type Countdown struct {
	Days    int  `json:"days"`
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
	Seconds int  `json:"seconds"`
	Done    bool `json:"done"`
}

// CountdownTo splits the time from now until target into days, hours,
// minutes and seconds. A target in the past yields all zeros and Done.
func CountdownTo(now, target time.Time) Countdown {
	diff := target.Sub(now)
	if diff <= 0 {
		return Countdown{Done: true}
	}
	secs := int(diff / time.Second)
	return Countdown{
		Days:    secs / 86400,
		Hours:   secs % 86400 / 3600,
		Minutes: secs % 3600 / 60,
		Seconds: secs % 60,
	}
}

// CountdownLayout is the layout of configured countdown targets.
const CountdownLayout = "2006-01-02T15:04:05"

// ParseCountdownTarget parses a target such as "2026-02-20T00:00:00" in loc.
func ParseCountdownTarget(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(CountdownLayout, s, loc)
}
