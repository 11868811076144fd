package web

import "embed"

// StaticFS holds the embedded editor assets.
//
//go:embed static/*
var StaticFS embed.FS
