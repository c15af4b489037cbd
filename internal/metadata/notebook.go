package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Aman-CERP/amankb/internal/filetype"
)

const widgetMIME = "application/vnd.jupyter.widget-view+json"

// NotebookParser handles Jupyter notebooks.
type NotebookParser struct {
	// SkipOutputs indexes cell sources only.
	SkipOutputs bool
}

type notebookFile struct {
	Metadata struct {
		KernelSpec struct {
			Name string `json:"name"`
		} `json:"kernelspec"`
		LanguageInfo struct {
			Name string `json:"name"`
		} `json:"language_info"`
	} `json:"metadata"`
	Cells []notebookCell `json:"cells"`
}

type notebookCell struct {
	CellType string           `json:"cell_type"`
	Source   multiline        `json:"source"`
	Outputs  []notebookOutput `json:"outputs"`
}

type notebookOutput struct {
	OutputType string                     `json:"output_type"`
	Text       multiline                  `json:"text"`
	Data       map[string]json.RawMessage `json:"data"`
}

// multiline decodes the notebook convention of a string or a list of lines.
type multiline string

func (m *multiline) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = multiline(s)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*m = multiline(strings.Join(lines, ""))
	return nil
}

func loadNotebook(path string) (*notebookFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var nb notebookFile
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, fmt.Errorf("malformed notebook %s: %w", path, err)
	}
	return &nb, nil
}

// Kind implements Parser.
func (NotebookParser) Kind() filetype.Kind { return filetype.Notebook }

// ExtractMetadata implements Parser.
func (NotebookParser) ExtractMetadata(_ context.Context, path string) DocumentMetadata {
	nb, err := loadNotebook(path)
	if err != nil {
		return Minimal(filetype.Notebook)
	}

	md := Minimal(filetype.Notebook)
	md.KernelSpec = nb.Metadata.KernelSpec.Name
	if md.KernelSpec == "" {
		md.KernelSpec = nb.Metadata.LanguageInfo.Name
	}

	var code, narrative int
	var tags []string
	for _, cell := range nb.Cells {
		switch cell.CellType {
		case "code":
			code++
		case "markdown":
			narrative++
			tags = append(tags, ExtractInlineTags(string(cell.Source))...)
		}
	}
	md.CellCount = intPtr(len(nb.Cells))
	md.CodeCellCount = intPtr(code)
	md.MarkdownCellCount = intPtr(narrative)
	md.Tags = MergeTags(tags)
	return md
}

// ExtractText implements Parser. Each cell is prefixed with a marker;
// textual outputs follow their code cell unless SkipOutputs is set.
func (p NotebookParser) ExtractText(_ context.Context, path string) (string, error) {
	nb, err := loadNotebook(path)
	if err != nil {
		return "", err
	}

	var parts []string
	for i, cell := range nb.Cells {
		src := string(cell.Source)
		if (cell.CellType == "code" || cell.CellType == "markdown") && strings.TrimSpace(src) != "" {
			parts = append(parts, fmt.Sprintf("# Cell %d (%s):\n%s\n", i+1, cell.CellType, src))
		}
		if cell.CellType != "code" || p.SkipOutputs {
			continue
		}
		for _, out := range cell.Outputs {
			parts = append(parts, outputParts(out)...)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func outputParts(out notebookOutput) []string {
	switch out.OutputType {
	case "stream":
		if text := string(out.Text); strings.TrimSpace(text) != "" {
			return []string{fmt.Sprintf("# Output (stream):\n%s\n", text)}
		}
	case "execute_result", "display_data":
		if _, ok := out.Data[widgetMIME]; ok {
			return nil
		}
		for mime := range out.Data {
			if strings.HasPrefix(mime, "image/") {
				return nil
			}
		}

		var parts []string
		if raw, ok := out.Data["text/html"]; ok {
			if html := decodeMultiline(raw); strings.TrimSpace(html) != "" {
				if text := htmlToText(html); text != "" {
					parts = append(parts, fmt.Sprintf("# Output (html):\n%s\n", text))
				}
			}
		}
		if raw, ok := out.Data["text/plain"]; ok {
			if plain := decodeMultiline(raw); strings.TrimSpace(plain) != "" && !isPlotOutput(plain) {
				parts = append(parts, fmt.Sprintf("# Output (text):\n%s\n", plain))
			}
		}
		return parts
	}
	return nil
}

func decodeMultiline(raw json.RawMessage) string {
	var m multiline
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	return string(m)
}

// isPlotOutput matches figure placeholders that carry no searchable text.
func isPlotOutput(text string) bool {
	return strings.HasPrefix(text, "<Figure size") ||
		strings.Contains(strings.ToLower(text), "plotly") ||
		strings.Contains(text, "matplotlib.figure.Figure")
}

// htmlToText flattens an HTML output. Tables (the common case, e.g.
// DataFrame reprs) become one " | " separated line per row.
func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	doc.Find("script, style").Remove()

	rows := doc.Find("tr")
	if rows.Length() > 0 {
		var lines []string
		rows.Each(func(_ int, row *goquery.Selection) {
			var cells []string
			row.Find("th, td").Each(func(_ int, c *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(c.Text()))
			})
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " | "))
			}
		})
		return strings.Join(lines, "\n")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
