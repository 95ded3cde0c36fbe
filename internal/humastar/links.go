package humastar

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// UITag marks Datastar SSE operations. They get no hypermedia links.
const UITag = "ui"

// LinkSet holds RFC 8288 link header values keyed by operation path.
type LinkSet map[string][]string

// For returns the links of an operation path.
func (ls LinkSet) For(opPath string) []string { return ls[opPath] }

// AutoLinks walks the OpenAPI spec and generates hypermedia links. Call
// after all routes are registered. searchPath, when registered, becomes
// the rel="search" target of every collection.
func AutoLinks(api huma.API, searchPath string) LinkSet {
	oapi := api.OpenAPI()
	ls := LinkSet{}

	// Collect collection paths (no {param}) and item paths (have {param}),
	// skipping UI (Datastar SSE) endpoints.
	type pathInfo struct {
		path string
		tags []string
	}
	var collections, items []pathInfo

	for p, pi := range oapi.Paths {
		tags := primaryTags(pi)
		if slices.Contains(tags, UITag) {
			continue
		}
		info := pathInfo{path: p, tags: tags}
		if strings.Contains(p, "{") {
			items = append(items, info)
		} else {
			collections = append(collections, info)
		}
	}
	_, hasSearch := oapi.Paths[searchPath]

	// Item → parent collection (rel="collection", rel="up").
	for _, item := range items {
		parent := path.Dir(item.path)
		if _, ok := oapi.Paths[parent]; ok {
			ls.add(item.path, parent, "collection")
			ls.add(item.path, parent, "up")
		}
	}

	// Collection → item template (rel="item").
	for _, coll := range collections {
		for _, item := range items {
			if path.Dir(item.path) == coll.path {
				ls.add(coll.path, item.path, "item")
			}
		}
	}

	for _, coll := range collections {
		if coll.path != "/health" {
			ls.add(coll.path, "/health", "up")
		}
		if hasSearch && coll.path != searchPath {
			ls.add(coll.path, searchPath, "search")
		}
		if oapi.Paths[coll.path].Post != nil {
			ls.add(coll.path, coll.path, "create-form")
		}
	}
	for _, item := range items {
		pi := oapi.Paths[item.path]
		if pi.Put != nil || pi.Patch != nil {
			ls.add(item.path, item.path, "edit")
		}
	}

	// Cross-link collections sharing a tag.
	for i, a := range collections {
		for j, b := range collections {
			if i != j && sharedTag(a.tags, b.tags) {
				ls.add(a.path, b.path, lastSegment(b.path))
			}
		}
	}

	// /health is the entry point: every collection plus discovery rels.
	for _, coll := range collections {
		if coll.path != "/health" {
			ls.add("/health", coll.path, lastSegment(coll.path))
		}
	}
	ls.add("/health", "/openapi.json", "service-desc")
	ls.add("/health", "/docs", "service-doc")
	if hasSearch {
		ls.add("/health", searchPath, "search")
	}

	// describedby per resource: JSON Schema fragment in the OpenAPI document.
	for _, all := range [][]pathInfo{collections, items} {
		for _, pi := range all {
			if ref := getResponseSchemaRef(oapi.Paths[pi.path]); ref != "" {
				ls.add(pi.path, "/openapi.json#/components/schemas/"+ref, "describedby")
			}
		}
	}

	// Document the relationships on the operations themselves.
	for p, pi := range oapi.Paths {
		headers, ok := ls[p]
		if !ok {
			continue
		}
		for _, op := range operationsOf(pi) {
			if op != nil {
				injectResponseLinks(op, headers)
			}
		}
	}
	return ls
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link
// headers at runtime: the static set, a self link for items, pagination
// links from Pager bodies and action links from Actor bodies.
func LinkTransformer(ls *LinkSet) huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil || slices.Contains(op.Tags, UITag) {
			return v, nil
		}

		if ls != nil {
			for _, link := range ls.For(op.Path) {
				ctx.AppendHeader("Link", link)
			}
		}

		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

// --- helpers ---

func (ls LinkSet) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	if !slices.Contains(ls[from], val) {
		ls[from] = append(ls[from], val)
	}
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range operationsOf(pi) {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func operationsOf(pi *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete}
}

func sharedTag(a, b []string) bool {
	for _, t := range a {
		if slices.Contains(b, t) {
			return true
		}
	}
	return false
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}

// injectResponseLinks adds OpenAPI Link objects to the operation's success response
// so the OpenAPI document itself documents the relationships.
func injectResponseLinks(op *huma.Operation, headers []string) {
	if op.Responses == nil {
		return
	}
	// Find the success response (2xx).
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, h := range headers {
		rel, href := parseLinkHeader(h)
		if rel == "" {
			continue
		}
		resp.Links[rel] = &huma.Link{
			OperationRef: href,
			Description:  fmt.Sprintf("Related: %s", rel),
		}
	}
}

func getResponseSchemaRef(pi *huma.PathItem) string {
	if pi.Get == nil || pi.Get.Responses == nil {
		return ""
	}
	for code, resp := range pi.Get.Responses {
		if !strings.HasPrefix(code, "2") || resp.Content == nil {
			continue
		}
		for _, mt := range resp.Content {
			if mt.Schema != nil && mt.Schema.Ref != "" {
				// Extract schema name from $ref like "#/components/schemas/Foo"
				parts := strings.Split(mt.Schema.Ref, "/")
				return parts[len(parts)-1]
			}
		}
	}
	return ""
}

func parseLinkHeader(h string) (rel, href string) {
	// Parse `<url>; rel="name"` format.
	parts := strings.SplitN(h, ";", 2)
	if len(parts) < 2 {
		return "", ""
	}
	href = strings.Trim(strings.TrimSpace(parts[0]), "<>")
	relPart := strings.TrimSpace(parts[1])
	if strings.HasPrefix(relPart, `rel="`) {
		rel = strings.Trim(relPart[4:], `"`)
	}
	return rel, href
}
