package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// Cookie is one entry of a browser cookie export (the format most
// cookie-editor extensions write).
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

func LoadCookies(path string) ([]playwright.OptionalCookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		out = append(out, c.ToPlaywright())
	}
	return out, nil
}

// LoadCookieDir loads every *.json export in dir. Files that fail to parse
// are reported back rather than aborting the whole load.
func LoadCookieDir(dir string) ([]playwright.OptionalCookie, map[string]error) {
	failed := map[string]error{}
	if dir == "" {
		return nil, failed
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		failed[dir] = err
		return nil, failed
	}

	var all []playwright.OptionalCookie
	for _, file := range matches {
		cookies, err := LoadCookies(file)
		if err != nil {
			failed[file] = err
			continue
		}
		all = append(all, cookies...)
	}
	return all, failed
}

func (c Cookie) ToPlaywright() playwright.OptionalCookie {
	path := c.Path
	if path == "" {
		path = "/"
	}
	pw := playwright.OptionalCookie{
		Name:   c.Name,
		Value:  c.Value,
		Domain: playwright.String(c.Domain),
		Path:   playwright.String(path),
	}
	if c.Expires > 0 {
		pw.Expires = playwright.Float(c.Expires)
	}
	if c.HTTPOnly {
		pw.HttpOnly = playwright.Bool(true)
	}
	if c.Secure {
		pw.Secure = playwright.Bool(true)
	}

	switch strings.ToLower(c.SameSite) {
	case "lax":
		pw.SameSite = playwright.SameSiteAttributeLax
	case "strict":
		pw.SameSite = playwright.SameSiteAttributeStrict
	case "none", "no_restriction":
		pw.SameSite = playwright.SameSiteAttributeNone
	}
	return pw
}
