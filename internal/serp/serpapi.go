package serp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/FranksOps/harvest/pkg/httpclient"
)

// SerpAPIEndpoint is the JSON search endpoint used when none is configured.
const SerpAPIEndpoint = "https://serpapi.com/search.json"

// SerpAPIEngines lists the engines the SerpAPI backend can query.
var SerpAPIEngines = []string{"google", "bing", "baidu", "yandex", "yahoo", "duckduckgo", "naver", "yelp"}

var errMissingKey = errors.New("serpapi: missing api key")

// SerpAPIConfig configures a SerpAPIProvider.
type SerpAPIConfig struct {
	Engine   string
	APIKey   string
	Endpoint string
	Client   *httpclient.Client
}

// SerpAPIProvider queries one engine through serpapi.com.
type SerpAPIProvider struct {
	engine   string
	apiKey   string
	endpoint string
	client   *httpclient.Client
}

// NewSerpAPI returns a provider for cfg.Engine. An unknown engine is an
// error; a missing key is not, but every search then fails.
func NewSerpAPI(cfg SerpAPIConfig) (*SerpAPIProvider, error) {
	if _, ok := serpAPIParams(cfg.Engine, "", 1); !ok {
		return nil, fmt.Errorf("%w: serpapi-%s", ErrUnknownProvider, cfg.Engine)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = SerpAPIEndpoint
	}
	if cfg.Client == nil {
		c, err := httpclient.New(httpclient.Config{})
		if err != nil {
			return nil, fmt.Errorf("serpapi: creating client: %w", err)
		}
		cfg.Client = c
	}
	return &SerpAPIProvider{
		engine:   cfg.Engine,
		apiKey:   cfg.APIKey,
		endpoint: cfg.Endpoint,
		client:   cfg.Client,
	}, nil
}

func (p *SerpAPIProvider) Name() string { return serpAPIPrefix + p.engine }

type serpAPIResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Link string `json:"link"`
	} `json:"organic_results"`
}

// Search issues one request and returns organic result links.
func (p *SerpAPIProvider) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if p.apiKey == "" {
		return nil, errMissingKey
	}
	params, _ := serpAPIParams(p.engine, query, limit)
	params.Set("api_key", p.apiKey)

	resp, err := p.client.Get(ctx, p.endpoint+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("serpapi %s: %w", p.engine, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("serpapi %s: reading body: %w", p.engine, err)
	}

	var out serpAPIResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("serpapi %s: %s", p.engine, resp.Status)
		}
		return nil, fmt.Errorf("serpapi %s: decoding response: %w", p.engine, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("serpapi %s: %s", p.engine, out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi %s: %s", p.engine, resp.Status)
	}

	links := make([]string, 0, len(out.OrganicResults))
	for _, r := range out.OrganicResults {
		links = append(links, r.Link)
	}
	return Clean(links, limit), nil
}

// serpAPIParams returns the engine-specific query string. Each engine names
// the query and the result count differently.
func serpAPIParams(engine, query string, limit int) (url.Values, bool) {
	n := strconv.Itoa(limit)
	v := url.Values{}
	v.Set("engine", engine)

	switch engine {
	case "google":
		v.Set("q", query)
		v.Set("num", n)
	case "bing":
		v.Set("q", query)
		v.Set("cc", "US")
		v.Set("count", n)
	case "baidu":
		v.Set("q", query)
		v.Set("rn", n)
	case "yandex":
		v.Set("text", query)
		v.Set("p", "0")
		v.Set("n", n)
	case "yahoo":
		v.Set("p", query)
		v.Set("b", "1")
		v.Set("count", n)
	case "duckduckgo":
		v.Set("q", query)
		v.Set("kl", "us-en")
		v.Set("t", "h_")
		v.Set("df", "y")
		v.Set("vnr", "1")
	case "naver":
		v.Set("query", query)
		v.Set("display", n)
	case "yelp":
		v.Set("find_desc", query)
		v.Set("find_loc", "United States")
		v.Set("sortby", "relevance")
		v.Set("size", n)
	default:
		return nil, false
	}
	return v, true
}
