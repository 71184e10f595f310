// Package web embeds the browser display page and its assets.
package web

import "embed"

//go:embed static/*
var StaticFiles embed.FS
