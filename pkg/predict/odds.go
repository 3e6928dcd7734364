package predict

import (
	"compress/flate"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"

	"github.com/mfalcone/ventus/internal/logger"
)

// Odds are decimal bookmaker prices for a fixture. Zero means the price
// was not offered.
type Odds struct {
	MatchID int64   `json:"matchId"`
	Home    float64 `json:"home"`
	Draw    float64 `json:"draw"`
	Away    float64 `json:"away"`
	Over25  float64 `json:"over25"`
	BTTS    float64 `json:"btts"`
}

// OddsSource supplies bookmaker prices for value bet detection.
type OddsSource interface {
	Odds(matchID int64) (*Odds, error)
}

///////////////////////////////////////////////////////////////
////////////////////////// Static source //////////////////////
///////////////////////////////////////////////////////////////

// StaticOdds is an OddsSource backed by a fixed map, used in tests and
// backtests where prices were captured ahead of time.
type StaticOdds map[int64]*Odds

func (s StaticOdds) Odds(matchID int64) (*Odds, error) {
	return s[matchID], nil
}

///////////////////////////////////////////////////////////////
////////////////////////// HTTP source ////////////////////////
///////////////////////////////////////////////////////////////

// HTTPOddsSource scrapes prices from an odds page. The pages embed their
// data as JSON inside a script tag, so the HTML is parsed for the tag
// and the JSON decoded rather than scraping table cells.
type HTTPOddsSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPOddsSource(baseURL string) *HTTPOddsSource {
	return &HTTPOddsSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (h *HTTPOddsSource) Odds(matchID int64) (*Odds, error) {
	url := fmt.Sprintf("%s/match/%d", h.baseURL, matchID)
	data, err := h.fetch(url)
	if err != nil {
		return nil, err
	}

	odds, err := extractEmbeddedOdds(data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract odds from %s: %w", url, err)
	}
	odds.MatchID = matchID
	return odds, nil
}

// fetch performs a browser-like GET and transparently decodes gzip,
// deflate and brotli responses.
func (h *HTTPOddsSource) fetch(url string) ([]byte, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch odds page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("odds page returned status %d", resp.StatusCode)
	}

	var reader io.ReadCloser = resp.Body
	switch encoding := resp.Header.Get("Content-Encoding"); encoding {
	case "gzip":
		reader, err = gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer reader.Close()
	case "deflate":
		reader = flate.NewReader(resp.Body)
		defer reader.Close()
	case "br":
		reader = io.NopCloser(brotli.NewReader(resp.Body))
	default:
		if encoding != "" {
			logger.Warn("Unknown content encoding:", encoding)
		}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read odds page: %w", err)
	}
	return data, nil
}

// extractEmbeddedOdds locates the odds JSON embedded in the page.
func extractEmbeddedOdds(html []byte) (*Odds, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse odds page: %w", err)
	}

	var odds *Odds
	doc.Find("script#match-odds, script[type='application/json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var candidate Odds
		if err := json.Unmarshal([]byte(s.Text()), &candidate); err != nil {
			return true // keep looking
		}
		if candidate.Home > 1 && candidate.Draw > 1 && candidate.Away > 1 {
			odds = &candidate
			return false
		}
		return true
	})

	if odds == nil {
		return nil, fmt.Errorf("no embedded odds found in page")
	}
	return odds, nil
}
