package render

import (
	"html/template"
	"strings"
	"time"

	"hololog/internal/domain/config"
	"hololog/internal/domain/content"
)

type Heading struct {
	Level int
	ID    string
	Text  string
}

// PageMeta carries the head metadata every page renders: title, canonical
// URL and OpenGraph fields.
type PageMeta struct {
	Title       string
	Description string
	Canonical   string
	OGType      string
	Locale      string
	SiteName    string
}

// NewPageMeta builds head metadata for path. A non-empty title is suffixed
// with the site title; an empty one uses the site title alone. An empty
// description falls back to the site description.
func NewPageMeta(site config.SiteConfig, path, title, description, ogType string) PageMeta {
	full := site.Title
	if t := strings.TrimSpace(title); t != "" {
		full = t + " - " + site.Title
	}
	if strings.TrimSpace(description) == "" {
		description = site.Description
	}
	if ogType == "" {
		ogType = "website"
	}
	return PageMeta{
		Title:       full,
		Description: description,
		Canonical:   site.FullURL(path),
		OGType:      ogType,
		Locale:      site.Locale,
		SiteName:    site.Title,
	}
}

// Page is embedded in every page model.
type Page struct {
	Site      config.SiteConfig
	Meta      PageMeta
	Generated time.Time
	// DevReload injects the live-reload client.
	DevReload bool
}

type HomePage struct {
	Page
	Posts []content.Post
	Total int
}

type BlogPage struct {
	Page
	Posts []content.Post
	Query string
	Total int
}

type PostPage struct {
	Page
	Post content.Post
	HTML template.HTML
	TOC  []Heading
}

type AboutPage struct {
	Page
	Posts int
	Tags  []TagStat
}

type TagStat struct {
	Name  string
	Count int
}

type NotFoundPage struct {
	Page
	Path string
}
