package catalogue

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gosimple/slug"
	"github.com/nao1215/markdown"
)

const datasetsTitle = "Datasets"

// Render writes the catalogue as GitHub flavored Markdown.
func (c *Catalogue) Render(w io.Writer) error {
	md := markdown.NewMarkdown(w)

	md.H1(c.Title)
	if c.Description != "" {
		md.PlainText(c.Description)
		md.PlainText("")
	}

	groups := c.ByCategory()
	toc := make([]string, 0, len(groups)+1)
	for _, g := range groups {
		toc = append(toc, markdown.Link(g.Category.Title(), "#"+Anchor(g.Category.Title())))
	}
	if len(c.Datasets) > 0 {
		toc = append(toc, markdown.Link(datasetsTitle, "#"+Anchor(datasetsTitle)))
	}
	md.BulletList(toc...)
	md.PlainText("")

	for _, g := range groups {
		md.H2(g.Category.Title())
		md.PlainText("")
		rows := make([][]string, 0, len(g.Models))
		for _, m := range g.Models {
			rows = append(rows, modelRow(m))
		}
		md.Table(markdown.TableSet{
			Header: []string{"Model", "Year", "Paper", "Implementation", "Notes"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if len(c.Datasets) > 0 {
		md.H2(datasetsTitle)
		md.PlainText("")
		rows := make([][]string, 0, len(c.Datasets))
		for _, d := range c.Datasets {
			rows = append(rows, []string{
				markdown.Link(d.Name, d.Source),
				strconv.Itoa(d.Images),
				d.Description,
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Dataset", "Images", "Description"},
			Rows:   rows,
		})
		md.PlainText("")
		md.PlainTextf("%d models, %d datasets, %d images in total.", len(c.Models), len(c.Datasets), c.TotalImages())
	}

	return md.Build()
}

func modelRow(m Model) []string {
	name := m.Name
	if m.Implemented {
		name = markdown.Bold(m.Name)
	}
	impl := "-"
	if m.Implementation != "" {
		impl = markdown.Link("code", m.Implementation)
	}
	notes := m.Notes
	if notes == "" {
		notes = "-"
	}
	return []string{
		name,
		strconv.Itoa(m.Year),
		markdown.Link(paperLabel(m.Paper), m.Paper),
		impl,
		notes,
	}
}

// paperLabel shortens arXiv links to their identifier.
func paperLabel(link string) string {
	var id string
	if _, err := fmt.Sscanf(link, "https://arxiv.org/abs/%s", &id); err == nil && id != "" {
		return "arXiv:" + id
	}
	return "paper"
}

// Anchor returns the heading anchor GitHub generates for a title.
func Anchor(title string) string {
	return slug.Make(title)
}
