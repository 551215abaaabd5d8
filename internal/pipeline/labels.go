package pipeline

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/crateloft/cratesync/internal/library"
)

// qrSize is the QR image edge in pixels.
const qrSize = 256

// WriteQRCode renders the release's Discogs page URL as qrcode.png.
func WriteQRCode(dir string, releaseID int64) error {
	url := fmt.Sprintf("https://www.discogs.com/release/%d", releaseID)
	if err := qrcode.WriteFile(url, qrcode.Medium, qrSize, library.QRCodePath(dir)); err != nil {
		return fmt.Errorf("write qr code: %w", err)
	}
	return nil
}

// labelTemplate is a printable crate label: cover and QR code side by side
// over the release facts and tracklist. Compilation to PDF is left to the
// user's TeX toolchain.
var labelTemplate = template.Must(template.New("label").Parse(`\documentclass[a6paper,landscape]{article}
\usepackage[margin=6mm]{geometry}
\usepackage{graphicx}
\pagestyle{empty}
\begin{document}
\begin{minipage}{0.28\textwidth}
\includegraphics[width=\linewidth]{cover.jpg}\\[2mm]
\includegraphics[width=0.6\linewidth]{qrcode.png}
\end{minipage}\hfill
\begin{minipage}{0.66\textwidth}
{\large\bfseries {{.Artist}}}\\
{\large {{.Title}}}\\[1mm]
{{.Label}}{{if .CatNo}} --- {{.CatNo}}{{end}}{{if .Year}} --- {{.Year}}{{end}}\\
{{.Format}}\\[2mm]
\begin{small}
\begin{tabular}{@{}ll@{}}
{{range .Tracks}}{{.Position}} & {{.Title}}\\
{{end}}\end{tabular}
\end{small}
\end{minipage}
\end{document}
`))

type labelData struct {
	Artist string
	Title  string
	Label  string
	CatNo  string
	Year   int
	Format string
	Tracks []labelTrack
}

type labelTrack struct {
	Position string
	Title    string
}

// WriteLabel renders label.tex from the release metadata.
func WriteLabel(dir string, rel library.Release) error {
	data := labelData{
		Artist: texEscape(strings.Join(rel.Artists, ", ")),
		Title:  texEscape(rel.Title),
		Label:  texEscape(strings.Join(rel.Labels, ", ")),
		CatNo:  texEscape(strings.Join(rel.CatalogNumbers, ", ")),
		Year:   rel.Year,
		Format: texEscape(formatLine(rel.Format)),
	}
	for _, t := range rel.Tracks {
		data.Tracks = append(data.Tracks, labelTrack{
			Position: texEscape(t.Position),
			Title:    texEscape(t.Title),
		})
	}

	var b strings.Builder
	if err := labelTemplate.Execute(&b, data); err != nil {
		return fmt.Errorf("render label: %w", err)
	}
	if err := os.WriteFile(library.LabelPath(dir), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write label: %w", err)
	}
	return nil
}

func formatLine(f library.Format) string {
	parts := []string{f.Name}
	if f.Qty != "" && f.Qty != "1" {
		parts[0] = f.Qty + "x" + f.Name
	}
	if len(f.Descriptions) > 0 {
		parts = append(parts, strings.Join(f.Descriptions, ", "))
	}
	return strings.Join(parts, ", ")
}

var texReplacer = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

// texEscape makes arbitrary metadata safe inside the label body.
func texEscape(s string) string {
	return texReplacer.Replace(s)
}
