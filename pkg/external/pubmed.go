package external

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ddx-reasoning-core/internal/domain"
)

const defaultPubMedURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"

// NameResolver maps a disease identifier to the term used in literature queries.
type NameResolver func(diseaseID string) string

// PubMedClient retrieves citations from NCBI PubMed via E-utilities
type PubMedClient struct {
	baseURL    string
	apiKey     string
	email      string // Required by NCBI for large-scale queries
	maxResults int
	httpClient *http.Client
	limiter    *rate.Limiter
	names      NameResolver
	logger     *logrus.Logger
	now        func() time.Time
}

// PubMedOption customises a PubMedClient.
type PubMedOption func(*PubMedClient)

// WithNameResolver sets how disease identifiers are turned into search terms.
func WithNameResolver(resolve NameResolver) PubMedOption {
	return func(p *PubMedClient) { p.names = resolve }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) PubMedOption {
	return func(p *PubMedClient) { p.httpClient = c }
}

// NewPubMedClient creates a new PubMed API client
func NewPubMedClient(config domain.LiteratureConfig, logger *logrus.Logger, opts ...PubMedOption) *PubMedClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultPubMedURL
	}
	if !strings.HasSuffix(config.BaseURL, "/") {
		config.BaseURL += "/"
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 3 // without an API key NCBI allows 3 requests per second
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	p := &PubMedClient{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		email:      config.Email,
		maxResults: config.MaxResults,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		names:      func(id string) string { return id },
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PubMedSearchResponse represents the XML response from PubMed search
type PubMedSearchResponse struct {
	XMLName xml.Name `xml:"eSearchResult"`
	Count   int      `xml:"Count"`
	IDList  struct {
		IDs []string `xml:"Id"`
	} `xml:"IdList"`
}

// PubMedSummaryResponse represents the XML response from PubMed summary
type PubMedSummaryResponse struct {
	XMLName         xml.Name          `xml:"eSummaryResult"`
	DocumentSummary []DocumentSummary `xml:"DocSum"`
}

// DocumentSummary represents a single publication summary from PubMed
type DocumentSummary struct {
	UID   string `xml:"Id"`
	Items []Item `xml:"Item"`
}

// Item is a summary field. List items (AuthorList) nest further items.
type Item struct {
	Name  string `xml:"Name,attr"`
	Type  string `xml:"Type,attr"`
	Value string `xml:",chardata"`
	Items []Item `xml:"Item"`
}

// CitationsFor searches PubMed for articles on the disease that mention the given findings.
func (p *PubMedClient) CitationsFor(ctx context.Context, diseaseID string, topFindings []string) ([]domain.Citation, error) {
	query := p.buildSearchQuery(diseaseID, topFindings)
	if query == "" {
		return []domain.Citation{}, nil
	}

	pmids, err := p.searchArticles(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search PubMed: %w", err)
	}
	if len(pmids) == 0 {
		return []domain.Citation{}, nil
	}

	summaries, err := p.getArticleSummaries(ctx, pmids)
	if err != nil {
		return nil, fmt.Errorf("failed to get article summaries: %w", err)
	}

	citations := p.convertToCitations(summaries, topFindings)
	p.logger.WithFields(logrus.Fields{
		"disease_id": diseaseID,
		"query":      query,
		"citations":  len(citations),
	}).Debug("PubMed citations retrieved")
	return citations, nil
}

func (p *PubMedClient) searchArticles(ctx context.Context, query string) ([]string, error) {
	params := p.baseParams()
	params.Set("term", query)
	params.Set("retmax", strconv.Itoa(p.maxResults))
	params.Set("sort", "relevance")

	body, err := p.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, err
	}

	var searchResponse PubMedSearchResponse
	if err := xml.Unmarshal(body, &searchResponse); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return searchResponse.IDList.IDs, nil
}

func (p *PubMedClient) getArticleSummaries(ctx context.Context, pmids []string) ([]DocumentSummary, error) {
	params := p.baseParams()
	params.Set("id", strings.Join(pmids, ","))

	body, err := p.get(ctx, "esummary.fcgi", params)
	if err != nil {
		return nil, err
	}

	var summaryResponse PubMedSummaryResponse
	if err := xml.Unmarshal(body, &summaryResponse); err != nil {
		return nil, fmt.Errorf("failed to parse summary response: %w", err)
	}
	return summaryResponse.DocumentSummary, nil
}

func (p *PubMedClient) baseParams() url.Values {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("retmode", "xml")
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}
	if p.email != "" {
		params.Set("email", p.email)
	}
	return params
}

func (p *PubMedClient) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("PubMed %s returned status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}
	return body, nil
}

// buildSearchQuery yields `"<disease>"[tiab] AND ("<finding>"[tiab] OR ...)`.
func (p *PubMedClient) buildSearchQuery(diseaseID string, findings []string) string {
	disease := strings.TrimSpace(p.names(diseaseID))
	if disease == "" {
		return ""
	}
	query := fmt.Sprintf("%q[tiab]", disease)

	var terms []string
	for _, f := range findings {
		if term := findingTerm(f); term != "" {
			terms = append(terms, fmt.Sprintf("%q[tiab]", term))
		}
	}
	if len(terms) > 0 {
		query = fmt.Sprintf("%s AND (%s)", query, strings.Join(terms, " OR "))
	}
	return query
}

func findingTerm(code string) string {
	return strings.TrimSpace(strings.ReplaceAll(code, "_", " "))
}

func (p *PubMedClient) convertToCitations(summaries []DocumentSummary, findings []string) []domain.Citation {
	citations := make([]domain.Citation, 0, len(summaries))
	retrieved := p.now().UTC()

	for _, summary := range summaries {
		citation := domain.Citation{
			PMID:      strings.TrimSpace(summary.UID),
			Source:    "PubMed",
			Authors:   []string{},
			Retrieved: retrieved,
		}

		for _, item := range summary.Items {
			switch item.Name {
			case "Title":
				citation.Title = strings.TrimSpace(item.Value)
			case "AuthorList":
				for _, author := range item.Items {
					if name := strings.TrimSpace(author.Value); name != "" {
						citation.Authors = append(citation.Authors, name)
					}
				}
			case "FullJournalName":
				citation.Journal = strings.TrimSpace(item.Value)
			case "Source":
				if citation.Journal == "" {
					citation.Journal = strings.TrimSpace(item.Value)
				}
			case "PubDate":
				if year, err := extractYear(item.Value); err == nil {
					citation.Year = year
				}
			case "DOI":
				citation.DOI = strings.TrimSpace(item.Value)
			}
		}

		citation.Relevance = assessRelevance(citation.Title, findings)
		citations = append(citations, citation)
	}
	return citations
}

func extractYear(dateStr string) (int, error) {
	for _, part := range strings.Fields(dateStr) {
		if len(part) == 4 {
			if year, err := strconv.Atoi(part); err == nil && year > 1800 {
				return year, nil
			}
		}
	}
	return 0, fmt.Errorf("could not extract year from: %s", dateStr)
}

// assessRelevance grades a title by how many of the query findings it names.
func assessRelevance(title string, findings []string) string {
	title = strings.ToLower(title)
	hits := 0
	for _, f := range findings {
		if term := findingTerm(f); term != "" && strings.Contains(title, strings.ToLower(term)) {
			hits++
		}
	}
	switch {
	case hits >= 2:
		return "high"
	case hits == 1:
		return "moderate"
	default:
		return "low"
	}
}
