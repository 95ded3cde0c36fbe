package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-rec/internal/service"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Width(10)

	blockStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("32"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
)

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func printBanner(opts *Options) {
	displayHost := opts.Host
	if displayHost == "0.0.0.0" {
		displayHost = "localhost"
	}
	baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)
	data := opts.DataDir
	if data == "" {
		data = "(in-memory)"
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("plat-rec server starting"))
	fmt.Println(blockStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		row("Server", baseURL),
		row("Data", data),
		row("Config", opts.Config),
		row("Search", baseURL+"/search"),
		row("Tiles", baseURL+"/tiles/{z}/{x}/{y}.mvt"),
		row("Docs", baseURL+"/docs"),
		row("OpenAPI", baseURL+"/openapi.json"),
	)))
	fmt.Println()
}

func printSeedStats(file, dataDir string, st service.SeedStats) {
	fmt.Println(titleStyle.Render("Seeded " + file))
	fmt.Println(blockStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		row("Database", dataDir),
		row("Lookups", fmt.Sprint(st.Lookups)),
		row("Created", fmt.Sprint(st.Created)),
		row("Updated", fmt.Sprint(st.Updated)),
	)))
}

func printProjection(albers, wgs84, mercator orb.Point) {
	fmt.Println(blockStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		row("Albers", fmt.Sprintf("%.3f, %.3f", albers.X(), albers.Y())),
		row("Lon/Lat", fmt.Sprintf("%.7f, %.7f", wgs84.Lon(), wgs84.Lat())),
		row("Mercator", fmt.Sprintf("%.3f, %.3f", mercator.X(), mercator.Y())),
	)))
}
