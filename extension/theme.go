// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package extension

// Theme names
const (
	ThemeDark  = "dental-dark"
	ThemeLight = "dental-light"
)

// Theme is a customization module entry: CSS custom properties applied to the
// viewer root when the theme is active
type Theme struct {
	ID     string            `json:"id"`
	Label  string            `json:"label"`
	Tokens map[string]string `json:"tokens"`
}

func themes() []Theme {
	return []Theme{
		{
			ID:    ThemeDark,
			Label: "Dental (dark)",
			Tokens: map[string]string{
				"--dental-background":   "#0b1620",
				"--dental-surface":      "#13232f",
				"--dental-primary":      "#3fb8af",
				"--dental-accent":       "#f2c14e",
				"--dental-text":         "#e6eef3",
				"--dental-measurement":  "#7fdbff",
				"--dental-tooth-active": "#f25f5c",
			},
		},
		{
			ID:    ThemeLight,
			Label: "Dental (light)",
			Tokens: map[string]string{
				"--dental-background":   "#f6f9fb",
				"--dental-surface":      "#ffffff",
				"--dental-primary":      "#1f7a74",
				"--dental-accent":       "#b7791f",
				"--dental-text":         "#1a2630",
				"--dental-measurement":  "#0074d9",
				"--dental-tooth-active": "#c0392b",
			},
		},
	}
}

// NextTheme returns the theme a toggle switches to
func NextTheme(current string) string {
	if current == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}
