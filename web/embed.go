// Package web ships the server-rendered shell: page and partial templates
// parsed by view.NewEngine, plus the script and stylesheet under /static.
package web

import "embed"

// Templates holds layouts, pages and the section partials swapped in place.
//
//go:embed templates/layouts/*.html templates/pages/*.html templates/partials/*.html
var Templates embed.FS

// Static holds app.js and app.css.
//
//go:embed static/css/*.css static/js/*.js
var Static embed.FS
