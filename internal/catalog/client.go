package catalog

import (
	"context"
	"iter"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mapwarper-cli/internal/fetcher"
	"github.com/sells-group/mapwarper-cli/internal/model"
	"github.com/sells-group/mapwarper-cli/internal/resilience"
)

// ErrTotalEntries is returned when the first maps request fails or carries no
// total_entries. Without the catalog size nothing else can be paginated, so
// the run aborts.
var ErrTotalEntries = eris.New("catalog: cannot determine total_entries")

// Page is one page of maps. Err is set, and Maps empty, when the page could
// not be fetched and the client runs in lenient mode.
type Page struct {
	Index int
	URL   string
	Maps  []model.MapRecord
	Err   error
}

// PageError converts a failed page into the record written to the harvest
// output.
func (p Page) PageError() model.PageError {
	pe := model.PageError{URL: p.URL, Page: p.Index}
	if p.Err != nil {
		pe.Error = p.Err.Error()
		pe.Kind = resilience.ClassifyError(p.Err)
	}
	return pe
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Pages fetches maps pages. Its post-fetch delay paces the harvest.
	Pages fetcher.Fetcher

	// Layers fetches layer listings. Defaults to Pages.
	Layers fetcher.Fetcher

	// StrictPages aborts the harvest on the first failed page instead of
	// recording it and moving on.
	StrictPages bool
}

// Client pages through the catalog sequentially.
type Client struct {
	urls   URLs
	pages  fetcher.Fetcher
	layers fetcher.Fetcher
	strict bool
}

// NewClient creates a catalog client.
func NewClient(urls URLs, opts ClientOptions) *Client {
	layers := opts.Layers
	if layers == nil {
		layers = opts.Pages
	}
	return &Client{
		urls:   urls,
		pages:  opts.Pages,
		layers: layers,
		strict: opts.StrictPages,
	}
}

// URLs returns the client's URL builder.
func (c *Client) URLs() URLs { return c.urls }

// Maps yields every page of maps in page order. The first request doubles as
// the total-count probe and is always strict: its failure is yielded as an
// error wrapping ErrTotalEntries and ends the sequence. Later failures are
// yielded as pages with Err set, or end the sequence in strict mode.
// Pagination stops at the first page shorter than the page size.
func (c *Client) Maps(ctx context.Context) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		log := zap.L().With(zap.String("component", "catalog"))
		perPage := c.urls.PerPage()

		firstURL := c.urls.Maps(1)
		var first model.CatalogPage[model.MapRecord]
		if err := c.pages.FetchJSON(ctx, firstURL, &first); err != nil {
			yield(Page{}, eris.Wrapf(ErrTotalEntries, "%s: %v", firstURL, err))
			return
		}
		if first.TotalEntries == nil {
			yield(Page{}, eris.Wrapf(ErrTotalEntries, "%s: response has no total_entries", firstURL))
			return
		}

		total := *first.TotalEntries
		log.Info("catalog size determined",
			zap.Int("total_entries", total),
			zap.Int("pages", PageCount(total, perPage)),
		)

		for index := range Pages(total, perPage) {
			page := Page{Index: index, URL: c.urls.Maps(index)}

			if index == 1 {
				page.Maps = first.Items
			} else {
				var body model.CatalogPage[model.MapRecord]
				if err := c.pages.FetchJSON(ctx, page.URL, &body); err != nil {
					if c.strict || ctx.Err() != nil {
						yield(Page{}, eris.Wrapf(err, "catalog: page %d", index))
						return
					}
					log.Warn("page failed, recording error and continuing",
						zap.Int("page", index),
						zap.String("url", page.URL),
						zap.String("kind", resilience.ClassifyError(err)),
						zap.Error(err),
					)
					page.Err = err
					if !yield(page, nil) {
						return
					}
					continue
				}
				page.Maps = body.Items
			}

			if len(page.Maps) == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}
			if len(page.Maps) < perPage {
				return
			}
		}
	}
}

// Layers lists layers page by page until a short or empty page. With mapID
// zero it lists the whole catalog's layers, otherwise those containing the
// map. A failed page is recorded and ends the listing.
func (c *Client) Layers(ctx context.Context, mapID int64) ([]model.Layer, []model.PageError) {
	var (
		layers []model.Layer
		errs   []model.PageError
	)
	perPage := c.urls.PerPage()

	for page := 1; ; page++ {
		u := c.urls.Layers(page)
		if mapID != 0 {
			u = c.urls.MapLayers(mapID, page)
		}

		var body model.CatalogPage[model.Layer]
		if err := c.layers.FetchJSON(ctx, u, &body); err != nil {
			zap.L().Warn("layer page failed",
				zap.String("component", "catalog"),
				zap.Int64("map_id", mapID),
				zap.Int("page", page),
				zap.Error(err),
			)
			errs = append(errs, model.PageError{
				Error: err.Error(),
				URL:   u,
				Page:  page,
				MapID: mapID,
				Kind:  resilience.ClassifyError(err),
			})
			break
		}

		layers = append(layers, body.Items...)
		if len(body.Items) < perPage {
			break
		}
	}

	return layers, errs
}
