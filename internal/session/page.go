package session

import (
	"strconv"
	"strings"
)

// Page is one of the control panel's views.
type Page int

const (
	PageOverview Page = iota
	PageModelManagement
	PageModelInteraction
	PageServerStatus
)

// Pages lists every page in navigation order.
var Pages = []Page{PageOverview, PageModelManagement, PageModelInteraction, PageServerStatus}

var pageSlugs = map[Page]string{
	PageOverview:         "overview",
	PageModelManagement:  "models",
	PageModelInteraction: "interact",
	PageServerStatus:     "status",
}

var pageTitles = map[Page]string{
	PageOverview:         "Overview",
	PageModelManagement:  "Model Management",
	PageModelInteraction: "Model Interaction",
	PageServerStatus:     "Server Status",
}

// Slug is the ?page= value for p.
func (p Page) Slug() string {
	if s, ok := pageSlugs[p]; ok {
		return s
	}
	return pageSlugs[PageOverview]
}

func (p Page) String() string {
	if s, ok := pageTitles[p]; ok {
		return s
	}
	return "Page(" + strconv.Itoa(int(p)) + ")"
}

// ParsePage accepts a slug or a title, case-insensitively.
func ParsePage(s string) (Page, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range Pages {
		if s == pageSlugs[p] || s == strings.ToLower(pageTitles[p]) {
			return p, true
		}
	}
	return PageOverview, false
}
