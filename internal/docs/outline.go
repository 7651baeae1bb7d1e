package docs

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ippclub/crates-mcp/internal/model"
)

// itemKinds maps rustdoc anchor classes to item kinds.
var itemKinds = map[string]string{
	"mod":        "module",
	"struct":     "struct",
	"enum":       "enum",
	"union":      "union",
	"trait":      "trait",
	"traitalias": "trait_alias",
	"fn":         "function",
	"macro":      "macro",
	"attr":       "attribute",
	"derive":     "derive",
	"type":       "type",
	"constant":   "constant",
	"static":     "static",
	"primitive":  "primitive",
	"keyword":    "keyword",
}

type outline struct {
	Description *string
	Modules     []string
	Items       []model.DocumentationItem
}

// extractOutline collects the modules and items listed on a rustdoc crate
// page. Only anchors carrying both an item class and a title are considered,
// which leaves out headings, sidebars and prose links. It never fails; an
// unfamiliar page yields an empty outline.
func extractOutline(doc *goquery.Document) outline {
	out := outline{
		Modules: []string{},
		Items:   []model.DocumentationItem{},
	}

	if content, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		if content = strings.TrimSpace(content); content != "" {
			out.Description = &content
		}
	}

	seen := make(map[string]bool)
	doc.Find("a[title][class]").Each(func(_ int, a *goquery.Selection) {
		kind, ok := anchorKind(a)
		if !ok {
			return
		}

		name := strings.TrimSpace(a.Text())
		if name == "" {
			return
		}

		path := itemPath(a.AttrOr("title", ""))
		if path == "" {
			path = name
		}

		key := kind + " " + path
		if seen[key] {
			return
		}
		seen[key] = true

		if kind == "module" {
			out.Modules = append(out.Modules, name)
			return
		}
		out.Items = append(out.Items, model.DocumentationItem{
			Name:        name,
			Kind:        kind,
			Path:        path,
			Description: shortDescription(a),
		})
	})

	return out
}

func anchorKind(a *goquery.Selection) (string, bool) {
	for _, class := range strings.Fields(a.AttrOr("class", "")) {
		if kind, ok := itemKinds[class]; ok {
			return kind, true
		}
	}
	return "", false
}

// itemPath turns a rustdoc title such as "struct serde::de::IgnoredAny" into
// the item path.
func itemPath(title string) string {
	_, path, found := strings.Cut(strings.TrimSpace(title), " ")
	if !found {
		return ""
	}
	return strings.TrimSpace(path)
}

// shortDescription finds the one-line summary next to an item link. Newer
// rustdoc renders <dt>link</dt><dd>summary</dd>; older versions use
// .item-name/.item-left cells followed by .desc/.item-right.
func shortDescription(a *goquery.Selection) *string {
	var desc *goquery.Selection
	if dt := a.Closest("dt"); dt.Length() > 0 {
		desc = dt.NextFiltered("dd")
	} else if cell := a.Closest(".item-name, .item-left"); cell.Length() > 0 {
		desc = cell.NextFiltered(".desc, .item-right, .docblock-short")
	}
	if desc == nil || desc.Length() == 0 {
		return nil
	}

	text := strings.Join(strings.Fields(desc.First().Text()), " ")
	if text == "" {
		return nil
	}
	return &text
}

// pageVersion reads the crate version rustdoc prints in the sidebar.
func pageVersion(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find(".version").First().Text())
}
