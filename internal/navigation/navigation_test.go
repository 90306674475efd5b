package navigation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/spark-playbook/playbook/internal/roles"
)

func titles(sections []Section) map[string][]string {
	out := make(map[string][]string)
	for _, s := range sections {
		for _, it := range s.Items {
			out[s.Title] = append(out[s.Title], it.Title)
		}
	}
	return out
}

func TestClassifyPrecedence(t *testing.T) {
	cases := []struct {
		name string
		set  roles.Set
		want Variant
	}{
		{"principal and ea", roles.NewSet(roles.EA, roles.Principal), VariantPrincipal},
		{"ea and manager", roles.NewSet(roles.Manager, roles.EA), VariantEA},
		{"gm only", roles.NewSet(roles.GM), VariantDefault},
		{"sales only", roles.NewSet(roles.Sales), VariantDefault},
		{"no roles", roles.NewSet(), VariantDefault},
		{"everything", roles.NewSet(roles.All...), VariantPrincipal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.set))
		})
	}
}

func TestSectionsPrincipal(t *testing.T) {
	got := titles(Sections(roles.NewSet(roles.Principal, roles.GM, roles.Sales)))
	want := map[string][]string{
		"Navigation":      {"Dashboard", "Critical Items", "Team Feed", "Quick Actions", "Direction Setting", "Reminders", "Meeting Board"},
		"Team Management": {"Team Overview", "Sales Overview"},
		"Sales":           {"Pipeline", "Key Deals"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sections mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, VariantPrincipal, Classify(roles.NewSet(roles.Principal, roles.GM)))
}

func TestSectionsEAWithSales(t *testing.T) {
	sections := Sections(roles.NewSet(roles.EA, roles.Sales))
	assert.Len(t, sections, 2)
	assert.Equal(t, "Navigation", sections[0].Title)
	assert.Equal(t, "My Tasks", sections[0].Items[1].Title)
	assert.Equal(t, "Sales", sections[1].Title)
}

func TestSectionsEA(t *testing.T) {
	got := Sections(roles.NewSet(roles.EA))
	want := []Section{{Title: "Navigation", Items: []Item{
		{Title: "Dashboard", URL: "/", Icon: "layout-dashboard"},
		{Title: "My Tasks", URL: "/my-tasks", Icon: "file-text"},
		{Title: "Quick Actions", URL: "/quick-actions", Icon: "zap"},
		{Title: "Meeting Prep", URL: "/meeting-prep", Icon: "calendar-days"},
		{Title: "Team Feed", URL: "/team-feed", Icon: "users"},
	}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sections mismatch (-want +got):\n%s", diff)
	}
}

func TestSectionsDefaultAddsExtras(t *testing.T) {
	base := []string{"My Focus", "Notes", "Quick Actions", "My Items", "Weekly Submission", "Reminders", "History"}

	got := titles(Sections(roles.NewSet(roles.GM)))
	want := map[string][]string{"Navigation": base, "Team Management": {"Team Overview", "Sales Overview"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("gm sections mismatch (-want +got):\n%s", diff)
	}

	got = titles(Sections(roles.NewSet(roles.Sales)))
	want = map[string][]string{"Navigation": base, "Sales": {"Pipeline", "Key Deals"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sales sections mismatch (-want +got):\n%s", diff)
	}

	sections := Sections(roles.NewSet(roles.Sales, roles.GM, roles.Manager))
	assert.Len(t, sections, 3)
	assert.Equal(t, "Team Management", sections[1].Title)
	assert.Equal(t, "Sales", sections[2].Title)
}

func TestSectionsReturnsCopies(t *testing.T) {
	first := Sections(roles.NewSet())
	first[0].Items[0].Title = "changed"
	second := Sections(roles.NewSet())
	assert.Equal(t, "My Focus", second[0].Items[0].Title)
}

func TestRoleLabel(t *testing.T) {
	assert.Equal(t, "Principal", RoleLabel(roles.NewSet(roles.EA, roles.Principal)))
	assert.Equal(t, "EA", RoleLabel(roles.NewSet(roles.EA, roles.GM)))
	assert.Equal(t, "GM", RoleLabel(roles.NewSet(roles.Sales, roles.GM)))
	assert.Equal(t, "Sales", RoleLabel(roles.NewSet(roles.Sales)))
	assert.Equal(t, "Manager", RoleLabel(roles.NewSet()))
}

func TestPathsUnique(t *testing.T) {
	paths := Paths()
	assert.Contains(t, paths, "/settings")
	assert.Contains(t, paths, "/deals")
	seen := map[string]bool{}
	for _, p := range paths {
		assert.False(t, seen[p], "duplicate %s", p)
		seen[p] = true
	}
	assert.Len(t, paths, 18)
}
