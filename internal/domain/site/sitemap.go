package site

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
	"time"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// Sitemap renders the sitemap for the routes that ask to be listed. Routes
// without a LastMod are stamped with now.
func Sitemap(baseURL string, routes []Route, now time.Time) ([]byte, error) {
	base := strings.TrimRight(baseURL, "/")
	set := sitemapURLSet{XMLNS: sitemapNS}
	for _, r := range routes {
		if !r.Sitemap {
			continue
		}
		u := sitemapURL{
			Loc:        base + r.Path,
			LastMod:    r.LastMod,
			ChangeFreq: r.ChangeFreq,
		}
		if r.Path == "/" {
			u.Loc = base
		}
		if u.LastMod == "" {
			u.LastMod = now.UTC().Format(time.DateOnly)
		}
		if r.Priority > 0 {
			u.Priority = strconv.FormatFloat(r.Priority, 'f', 1, 64)
		}
		set.URLs = append(set.URLs, u)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Robots allows every agent everywhere and points at the sitemap.
func Robots(baseURL string) []byte {
	base := strings.TrimRight(baseURL, "/")
	return []byte("User-agent: *\nAllow: /\n\nSitemap: " + base + "/sitemap.xml\n")
}
