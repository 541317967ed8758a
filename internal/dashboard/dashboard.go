// Package dashboard embeds the page templates and stylesheet served by the web app.
package dashboard

import "embed"

//go:embed templates/*.html
var Templates embed.FS

//go:embed assets/*
var Assets embed.FS
