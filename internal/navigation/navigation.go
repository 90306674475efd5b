// Package navigation derives the dashboard variant and sidebar sections
// from a profile's role tags.
package navigation

import "github.com/spark-playbook/playbook/internal/roles"

// Variant selects one of the mutually exclusive dashboard bodies.
type Variant int

const (
	// VariantDefault is the manager home, also used for gm and sales.
	VariantDefault Variant = iota
	VariantEA
	VariantPrincipal
)

func (v Variant) String() string {
	switch v {
	case VariantPrincipal:
		return "principal"
	case VariantEA:
		return "ea"
	default:
		return "default"
	}
}

// Item is a single sidebar link.
type Item struct {
	Title string
	URL   string
	Icon  string
}

// Section groups sidebar links under a heading.
type Section struct {
	Title string
	Items []Item
}

// SettingsItem is rendered in the sidebar footer for every variant.
var SettingsItem = Item{Title: "Settings", URL: "/settings", Icon: "settings"}

var (
	principalItems = []Item{
		{Title: "Dashboard", URL: "/", Icon: "layout-dashboard"},
		{Title: "Critical Items", URL: "/critical", Icon: "target"},
		{Title: "Team Feed", URL: "/team-feed", Icon: "users"},
		{Title: "Quick Actions", URL: "/quick-actions", Icon: "zap"},
		{Title: "Direction Setting", URL: "/direction", Icon: "message-square"},
		{Title: "Reminders", URL: "/reminders", Icon: "bell"},
		{Title: "Meeting Board", URL: "/meetings", Icon: "calendar-days"},
	}
	eaItems = []Item{
		{Title: "Dashboard", URL: "/", Icon: "layout-dashboard"},
		{Title: "My Tasks", URL: "/my-tasks", Icon: "file-text"},
		{Title: "Quick Actions", URL: "/quick-actions", Icon: "zap"},
		{Title: "Meeting Prep", URL: "/meeting-prep", Icon: "calendar-days"},
		{Title: "Team Feed", URL: "/team-feed", Icon: "users"},
	}
	defaultItems = []Item{
		{Title: "My Focus", URL: "/", Icon: "target"},
		{Title: "Notes", URL: "/notes", Icon: "message-square"},
		{Title: "Quick Actions", URL: "/quick-actions", Icon: "zap"},
		{Title: "My Items", URL: "/items", Icon: "file-text"},
		{Title: "Weekly Submission", URL: "/submission", Icon: "bar-chart"},
		{Title: "Reminders", URL: "/reminders", Icon: "bell"},
		{Title: "History", URL: "/history", Icon: "history"},
	}
	gmItems = []Item{
		{Title: "Team Overview", URL: "/team-overview", Icon: "users"},
		{Title: "Sales Overview", URL: "/sales-overview", Icon: "trending-up"},
	}
	salesItems = []Item{
		{Title: "Pipeline", URL: "/pipeline", Icon: "trending-up"},
		{Title: "Key Deals", URL: "/deals", Icon: "building"},
	}
)

// Classify picks the dashboard variant: principal beats ea beats the default.
func Classify(set roles.Set) Variant {
	switch {
	case set.Has(roles.Principal):
		return VariantPrincipal
	case set.Has(roles.EA):
		return VariantEA
	default:
		return VariantDefault
	}
}

// Sections returns the sidebar for set: the variant's base items, then a
// Team Management section for gm and a Sales section for sales. The extras
// never change the variant.
func Sections(set roles.Set) []Section {
	var base []Item
	switch Classify(set) {
	case VariantPrincipal:
		base = principalItems
	case VariantEA:
		base = eaItems
	default:
		base = defaultItems
	}

	out := []Section{{Title: "Navigation", Items: clone(base)}}
	if set.Has(roles.GM) {
		out = append(out, Section{Title: "Team Management", Items: clone(gmItems)})
	}
	if set.Has(roles.Sales) {
		out = append(out, Section{Title: "Sales", Items: clone(salesItems)})
	}
	return out
}

// RoleLabel is the caption shown under the product name in the sidebar.
func RoleLabel(set roles.Set) string {
	switch {
	case set.Has(roles.Principal):
		return "Principal"
	case set.Has(roles.EA):
		return "EA"
	case set.Has(roles.GM):
		return "GM"
	case set.Has(roles.Sales):
		return "Sales"
	default:
		return "Manager"
	}
}

// Paths lists every sidebar destination, including settings.
func Paths() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range [][]Item{principalItems, eaItems, defaultItems, gmItems, salesItems, {SettingsItem}} {
		for _, it := range group {
			if _, ok := seen[it.URL]; ok {
				continue
			}
			seen[it.URL] = struct{}{}
			out = append(out, it.URL)
		}
	}
	return out
}

func clone(items []Item) []Item {
	return append([]Item(nil), items...)
}
