// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-rec/internal/config"
	"github.com/joeblew999/plat-rec/internal/filter"
	"github.com/joeblew999/plat-rec/internal/geo"
	"github.com/joeblew999/plat-rec/internal/humastar"
	"github.com/joeblew999/plat-rec/internal/search"
	"github.com/joeblew999/plat-rec/internal/service"
)

// Route paths referenced outside the registrations.
const (
	PathSearch = "/api/v1/recreation-resource/search"
	pathRec    = "/api/v1/recreation-resource/{id}"
	pathAdmin  = "/api/v1/admin/recreation-resource"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Rec    *service.RecResourceService
	Config func() *config.Config
	Log    *zap.Logger
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Recreation resource id" example:"REC0001"`
}

// QueryInput captures the raw query string next to its documented
// params, so facet params configured at runtime are read too. Params are
// strings so malformed values fall back to defaults instead of failing.
type QueryInput struct {
	Filter string `query:"filter" doc:"Free text matched against name and closest community" example:"lake"`
	Page   string `query:"page" doc:"1-based page number" example:"1"`
	Limit  string `query:"limit" doc:"Page size, at most 100" example:"10"`

	Raw url.Values `json:"-"`
}

// Resolve implements huma.Resolver.
func (i *QueryInput) Resolve(ctx huma.Context) []error {
	u := ctx.URL()
	i.Raw = u.Query()
	return nil
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// RecResourceBody is a resource detail with hypermedia actions.
type RecResourceBody struct {
	service.RecResource
}

var recActions = []humastar.ActionDef{
	{Rel: "map-features", Pattern: "/api/v1/recreation-resource/%s/map-features", Method: "GET", Title: "Map features"},
	{Rel: "edit", Pattern: pathAdmin + "/%s", Method: "PUT", Title: "Update resource"},
	{Rel: "delete", Pattern: pathAdmin + "/%s", Method: "DELETE", Title: "Delete resource"},
}

// Actions implements humastar.Actor.
func (b RecResourceBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, recActions)
}

// FiltersBody is a URL query and the chips projected from it.
type FiltersBody struct {
	Query string        `json:"query" doc:"Encoded URL query string" example:"activities=1_3&filter=lake"`
	Chips []filter.Chip `json:"chips" doc:"Active filter chips in URL order"`
}

type ToggleInput struct {
	Body struct {
		Query string      `json:"query" doc:"Current encoded URL query string"`
		Chip  filter.Chip `json:"chip" doc:"Chip to toggle; label is ignored"`
	}
}

type ClearInput struct {
	Body struct {
		Query string `json:"query" doc:"Current encoded URL query string"`
	}
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every REST handler on api.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewInfoHandler(svc).RegisterRoutes(api)
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterRecResources registers public read routes.
func (h *APIHandler) RegisterRecResources(api huma.API) {
	huma.Get(api, PathSearch, h.Search, huma.OperationTags("recreation-resource"))
	huma.Get(api, pathRec, h.GetRecResource, huma.OperationTags("recreation-resource"))
	huma.Get(api, pathRec+"/map-features", h.GetMapFeatures, huma.OperationTags("recreation-resource"))
}

// RegisterFilters registers the filter chip routes.
func (h *APIHandler) RegisterFilters(api huma.API) {
	huma.Get(api, "/api/v1/filters/chips", h.GetChips, huma.OperationTags("filters"))
	huma.Post(api, "/api/v1/filters/toggle", h.ToggleChip, huma.OperationTags("filters"))
	huma.Post(api, "/api/v1/filters/clear", h.ClearChips, huma.OperationTags("filters"))
}

// RegisterAdmin registers resource mutations.
func (h *APIHandler) RegisterAdmin(api huma.API) {
	huma.Post(api, pathAdmin, h.CreateRecResource, huma.OperationTags("admin"), func(o *huma.Operation) {
		o.DefaultStatus = http.StatusCreated
	})
	huma.Put(api, pathAdmin+"/{id}", h.PutRecResource, huma.OperationTags("admin"))
	huma.Delete(api, pathAdmin+"/{id}", h.DeleteRecResource, huma.OperationTags("admin"))
}

// RegisterActivities registers lookup listing routes.
func (h *APIHandler) RegisterActivities(api huma.API) {
	huma.Get(api, "/api/v1/activities", h.GetActivities, huma.OperationTags("recreation-resource"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

// Search runs a paginated, faceted search.
func (h *APIHandler) Search(ctx context.Context, input *QueryInput) (*struct{ Body search.Page }, error) {
	page, err := h.svc.Rec.Search(ctx, h.request(input.Raw))
	if err != nil {
		return nil, h.mapError(err)
	}
	return &struct{ Body search.Page }{Body: page}, nil
}

func (h *APIHandler) GetRecResource(ctx context.Context, input *IDInput) (*struct{ Body RecResourceBody }, error) {
	r, err := h.svc.Rec.Get(ctx, input.ID)
	if err != nil {
		return nil, h.mapError(err)
	}
	return &struct{ Body RecResourceBody }{Body: RecResourceBody{r}}, nil
}

// GetMapFeatures returns the resource geometries in Web Mercator.
func (h *APIHandler) GetMapFeatures(ctx context.Context, input *IDInput) (*struct {
	Body *geojson.FeatureCollection
}, error) {
	r, err := h.svc.Rec.MapResource(ctx, input.ID)
	if err != nil {
		return nil, h.mapError(err)
	}
	fc := geo.FeatureCollection(geo.MapFeaturesFromRecResource(r))
	return &struct{ Body *geojson.FeatureCollection }{Body: fc}, nil
}

// GetChips projects chips from the query string.
func (h *APIHandler) GetChips(ctx context.Context, input *QueryInput) (*struct{ Body FiltersBody }, error) {
	q := input.Raw
	groups, err := h.svc.Rec.Groups(ctx, h.request(q))
	if err != nil {
		return nil, h.mapError(err)
	}
	return &struct{ Body FiltersBody }{Body: FiltersBody{
		Query: q.Encode(),
		Chips: filter.ChipsFromQuery(q, groups),
	}}, nil
}

// ToggleChip adds the chip to the query, or removes it if present.
func (h *APIHandler) ToggleChip(ctx context.Context, input *ToggleInput) (*struct{ Body FiltersBody }, error) {
	q, err := url.ParseQuery(input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid query string", err)
	}
	chip := input.Body.Chip
	if chip.Param == "" || chip.ID == "" {
		return nil, huma.Error400BadRequest("chip param and id are required")
	}

	next := filter.ToggleQuery(q, chip)
	groups, err := h.svc.Rec.Groups(ctx, h.request(next))
	if err != nil {
		return nil, h.mapError(err)
	}
	return &struct{ Body FiltersBody }{Body: FiltersBody{
		Query: next.Encode(),
		Chips: filter.ChipsFromQuery(next, groups),
	}}, nil
}

// ClearChips drops every filter param except the preserved ones.
func (h *APIHandler) ClearChips(ctx context.Context, input *ClearInput) (*struct{ Body FiltersBody }, error) {
	q, err := url.ParseQuery(input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid query string", err)
	}
	next := filter.ClearQuery(q, h.svc.Config().PreservedParams)
	return &struct{ Body FiltersBody }{Body: FiltersBody{Query: next.Encode(), Chips: []filter.Chip{}}}, nil
}

func (h *APIHandler) CreateRecResource(ctx context.Context, input *struct {
	Body service.RecResourceInput
}) (*struct {
	Location string `header:"Location"`
	Body     RecResourceBody
}, error) {
	r, err := h.svc.Rec.Create(ctx, input.Body)
	if err != nil {
		return nil, h.mapError(err)
	}
	out := &struct {
		Location string `header:"Location"`
		Body     RecResourceBody
	}{Location: "/api/v1/recreation-resource/" + r.ID, Body: RecResourceBody{r}}
	return out, nil
}

func (h *APIHandler) PutRecResource(ctx context.Context, input *struct {
	IDInput
	Body service.RecResourceInput
}) (*struct{ Body RecResourceBody }, error) {
	r, err := h.svc.Rec.Update(ctx, input.ID, input.Body)
	if err != nil {
		return nil, h.mapError(err)
	}
	return &struct{ Body RecResourceBody }{Body: RecResourceBody{r}}, nil
}

func (h *APIHandler) DeleteRecResource(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Rec.Delete(ctx, input.ID); err != nil {
		return nil, h.mapError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Recreation resource deleted"}}, nil
}

func (h *APIHandler) GetActivities(ctx context.Context, input *struct{}) (*struct{ Body []service.Lookup }, error) {
	acts, err := h.svc.Rec.Activities(ctx)
	if err != nil {
		return nil, h.mapError(err)
	}
	return &struct{ Body []service.Lookup }{Body: acts}, nil
}

// request parses a search request, applying the configured page size
// when the query names none.
func (h *APIHandler) request(q url.Values) search.Request {
	req := search.ParseRequest(q, h.svc.Rec.FacetParams())
	if !q.Has(search.ParamLimit) {
		req.Limit = h.svc.Config().Search.DefaultLimit
	}
	return req
}

// mapError turns service errors into Huma status errors.
func (h *APIHandler) mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrExists):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, service.ErrInvalid):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, context.Canceled):
		return huma.Error503ServiceUnavailable("request canceled")
	default:
		h.svc.Log.Error("request failed", zap.Error(err))
		return huma.Error500InternalServerError("internal error")
	}
}
