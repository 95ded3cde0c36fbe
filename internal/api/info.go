package api

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	svc *Services
}

func NewInfoHandler(svc *Services) *InfoHandler {
	return &InfoHandler{svc: svc}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name       string   `json:"name" doc:"Service name"`
	Version    string   `json:"version" doc:"Service version"`
	Resources  int      `json:"resources" doc:"Number of recreation resources"`
	Activities int      `json:"activities" doc:"Number of activity codes"`
	LastUpdate string   `json:"last_update,omitempty" doc:"Most recent resource change (RFC 3339)"`
	Facets     []string `json:"facets" doc:"Configured facet params"`
	Features   []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	st, err := h.svc.Rec.Stats(ctx)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("database not available", err)
	}
	body := InfoBody{
		Name:       "plat-rec",
		Version:    "0.1.0",
		Resources:  st.Resources,
		Activities: st.Activities,
		Facets:     h.svc.Config().FacetParams(),
		Features:   []string{"search", "facets", "map-features", "mvt", "datastar", "duckdb"},
	}
	if !st.LastUpdate.IsZero() {
		body.LastUpdate = st.LastUpdate.UTC().Format(time.RFC3339)
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
