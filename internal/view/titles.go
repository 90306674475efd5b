package view

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// TitleFromPath derives a page title from a URL path: "/team-feed" becomes
// "Team Feed".
func TitleFromPath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	return titleCaser.String(strings.ReplaceAll(path, "-", " "))
}
