package site

import "encoding/json"

// Manifest is the web app manifest served at /manifest.webmanifest.
type Manifest struct {
	Name            string `json:"name"`
	ShortName       string `json:"short_name"`
	Description     string `json:"description"`
	StartURL        string `json:"start_url"`
	Display         string `json:"display"`
	BackgroundColor string `json:"background_color"`
	ThemeColor      string `json:"theme_color"`
	Icons           []any  `json:"icons"`
}

func NewManifest(title, description string) Manifest {
	return Manifest{
		Name:            title,
		ShortName:       title,
		Description:     description,
		StartURL:        "/",
		Display:         "standalone",
		BackgroundColor: "#ffffff",
		ThemeColor:      "#000000",
		Icons:           []any{},
	}
}

func (m Manifest) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
