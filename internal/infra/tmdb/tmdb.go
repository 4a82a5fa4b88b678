package infra_tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/irfanalimd/watchqueue/internal/config"
)

const posterBase = "https://image.tmdb.org/t/p/w500"

// MovieInfo is the normalized metadata shape for both movies and TV.
type MovieInfo struct {
	TMDBID         int      `json:"tmdb_id"`
	Title          string   `json:"title"`
	PosterURL      string   `json:"poster_url,omitempty"`
	Year           int      `json:"year,omitempty"`
	RuntimeMinutes int      `json:"runtime_minutes,omitempty"`
	Genres         []string `json:"genres"`
	Overview       string   `json:"overview,omitempty"`
	VoteAverage    float64  `json:"vote_average,omitempty"`
	MediaType      string   `json:"media_type,omitempty"`
}

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	genreMu    sync.Mutex
	genreCache map[int]string
}

func New(cfg config.TMDB, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type searchResult struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	OriginalName string  `json:"original_name"`
	PosterPath   string  `json:"poster_path"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	Overview     string  `json:"overview"`
	VoteAverage  float64 `json:"vote_average"`
	GenreIDs     []int   `json:"genre_ids"`
	MediaType    string  `json:"media_type"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// SearchMovie returns the first movie matching the query, nil when
// nothing matches or the key is missing.
func (c *Client) SearchMovie(ctx context.Context, query string) (*MovieInfo, error) {
	if !c.Configured() {
		c.logger.Warn("tmdb api key not configured")
		return nil, nil
	}

	var resp searchResponse
	if err := c.get(ctx, "/search/movie", url.Values{"query": {query}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	info := resp.Results[0].toMovie()
	return &info, nil
}

func (c *Client) SearchTV(ctx context.Context, query string) (*MovieInfo, error) {
	if !c.Configured() {
		return nil, nil
	}

	var resp searchResponse
	if err := c.get(ctx, "/search/tv", url.Values{"query": {query}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	info := resp.Results[0].toTV()
	return &info, nil
}

// Search tries movies first and falls back to TV shows.
func (c *Client) Search(ctx context.Context, query string) (*MovieInfo, error) {
	info, err := c.SearchMovie(ctx, query)
	if err != nil {
		return nil, err
	}
	if info != nil {
		return info, nil
	}
	return c.SearchTV(ctx, query)
}

// SearchMulti returns up to limit mixed movie and TV matches with genre
// ids resolved to names.
func (c *Client) SearchMulti(ctx context.Context, query string, limit int) ([]MovieInfo, error) {
	if !c.Configured() {
		c.logger.Warn("tmdb api key not configured")
		return []MovieInfo{}, nil
	}
	if limit <= 0 {
		limit = 8
	}

	genres := c.genreMap(ctx)

	var resp searchResponse
	if err := c.get(ctx, "/search/multi", url.Values{"query": {query}}, &resp); err != nil {
		return nil, err
	}

	results := make([]MovieInfo, 0, limit)
	for _, item := range resp.Results {
		if len(results) >= limit {
			break
		}
		var info MovieInfo
		switch item.MediaType {
		case "movie":
			info = item.toMovie()
		case "tv":
			info = item.toTV()
		default:
			continue
		}
		info.MediaType = item.MediaType
		info.Genres = resolveGenres(item.GenreIDs, genres)
		results = append(results, info)
	}
	return results, nil
}

type movieDetails struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"poster_path"`
	ReleaseDate string  `json:"release_date"`
	Overview    string  `json:"overview"`
	VoteAverage float64 `json:"vote_average"`
	Runtime     int     `json:"runtime"`
	Genres      []struct {
		Name string `json:"name"`
	} `json:"genres"`
}

// Movie fetches full details, including runtime and genre names, which
// search results never carry.
func (c *Client) Movie(ctx context.Context, tmdbID int) (*MovieInfo, error) {
	if !c.Configured() {
		return nil, nil
	}

	var details movieDetails
	err := c.get(ctx, "/movie/"+strconv.Itoa(tmdbID), url.Values{}, &details)
	if err != nil {
		return nil, err
	}

	genres := make([]string, 0, len(details.Genres))
	for _, g := range details.Genres {
		genres = append(genres, g.Name)
	}
	return &MovieInfo{
		TMDBID:         details.ID,
		Title:          details.Title,
		PosterURL:      posterURL(details.PosterPath),
		Year:           yearOf(details.ReleaseDate),
		RuntimeMinutes: details.Runtime,
		Genres:         genres,
		Overview:       details.Overview,
		VoteAverage:    details.VoteAverage,
	}, nil
}

// resolveGenres maps genre ids to names, skipping ids that are not in
// the mapping.
func resolveGenres(ids []int, genres map[int]string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := genres[id]; ok {
			names = append(names, name)
		}
	}
	return names
}

// genreMap lazily fetches and caches the id -> name mapping for movie
// and TV genres. Failures degrade to whatever is cached.
func (c *Client) genreMap(ctx context.Context) map[int]string {
	c.genreMu.Lock()
	defer c.genreMu.Unlock()

	if c.genreCache != nil {
		return c.genreCache
	}

	cache := map[int]string{}
	for _, path := range []string{"/genre/movie/list", "/genre/tv/list"} {
		var resp struct {
			Genres []struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"genres"`
		}
		if err := c.get(ctx, path, url.Values{}, &resp); err != nil {
			c.logger.Error("tmdb genre fetch failed", slog.String("path", path), slog.Any("error", err))
			continue
		}
		for _, g := range resp.Genres {
			if _, ok := cache[g.ID]; !ok {
				cache[g.ID] = g.Name
			}
		}
	}
	if len(cache) > 0 {
		c.genreCache = cache
	}
	return cache
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tmdb request %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tmdb decode %s: %w", path, err)
	}
	return nil
}

func (r searchResult) toMovie() MovieInfo {
	return MovieInfo{
		TMDBID:      r.ID,
		Title:       r.Title,
		PosterURL:   posterURL(r.PosterPath),
		Year:        yearOf(r.ReleaseDate),
		Genres:      []string{},
		Overview:    r.Overview,
		VoteAverage: r.VoteAverage,
	}
}

func (r searchResult) toTV() MovieInfo {
	title := r.Name
	if title == "" {
		title = r.OriginalName
	}
	return MovieInfo{
		TMDBID:      r.ID,
		Title:       title,
		PosterURL:   posterURL(r.PosterPath),
		Year:        yearOf(r.FirstAirDate),
		Genres:      []string{},
		Overview:    r.Overview,
		VoteAverage: r.VoteAverage,
	}
}

func posterURL(path string) string {
	if path == "" {
		return ""
	}
	return posterBase + path
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

// Availability reports which providers stream a title. JustWatch has no
// public API, so the default implementation knows nothing.
type Availability interface {
	Providers(ctx context.Context, title string) ([]string, error)
}

type NoAvailability struct{}

func (NoAvailability) Providers(ctx context.Context, title string) ([]string, error) {
	return []string{}, nil
}

// Enrichment is the partial metadata merged into a queue item after it
// was added with just a title.
type Enrichment struct {
	TMDBID         int
	PosterURL      string
	Overview       string
	VoteAverage    float64
	Year           int
	RuntimeMinutes int
	Genres         []string
	StreamingOn    []string
	Found          bool
}

type Enricher struct {
	tmdb         *Client
	availability Availability
	logger       *slog.Logger
}

func NewEnricher(tmdb *Client, availability Availability, logger *slog.Logger) *Enricher {
	if availability == nil {
		availability = NoAvailability{}
	}
	return &Enricher{
		tmdb:         tmdb,
		availability: availability,
		logger:       logger,
	}
}

// Enrich queries metadata and availability concurrently. Either source
// failing yields partial data, never an error: enrichment is best effort.
func (e *Enricher) Enrich(ctx context.Context, title string) Enrichment {
	var (
		wg        sync.WaitGroup
		info      *MovieInfo
		providers []string
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		result, err := e.tmdb.Search(ctx, title)
		if err != nil {
			e.logger.Warn("tmdb enrichment failed",
				slog.String("title", title), slog.Any("error", err))
			return
		}
		info = result
	}()
	go func() {
		defer wg.Done()
		result, err := e.availability.Providers(ctx, title)
		if err != nil {
			e.logger.Warn("availability enrichment failed",
				slog.String("title", title), slog.Any("error", err))
			return
		}
		providers = result
	}()
	wg.Wait()

	enrichment := Enrichment{StreamingOn: providers}
	if info != nil {
		enrichment.Found = true
		enrichment.TMDBID = info.TMDBID
		enrichment.PosterURL = info.PosterURL
		enrichment.Overview = info.Overview
		enrichment.VoteAverage = info.VoteAverage
		enrichment.Year = info.Year
		enrichment.RuntimeMinutes = info.RuntimeMinutes
		enrichment.Genres = info.Genres

		// Search results carry no runtime; worth one more call when
		// the movie id is known.
		if info.RuntimeMinutes == 0 && info.TMDBID != 0 {
			if details, err := e.tmdb.Movie(ctx, info.TMDBID); err == nil && details != nil {
				enrichment.RuntimeMinutes = details.RuntimeMinutes
				if len(enrichment.Genres) == 0 {
					enrichment.Genres = details.Genres
				}
			}
		}
	}
	return enrichment
}
