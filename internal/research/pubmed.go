package research

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PubMed searches the NCBI E-utilities (esearch + efetch).
type PubMed struct {
	baseURL   string
	email     string
	userAgent string
	client    *http.Client
}

// NewPubMed builds a PubMed client. An empty baseURL uses the public
// E-utilities endpoint. NCBI asks callers to identify themselves with an
// email address.
func NewPubMed(baseURL, email, userAgent string, client *http.Client) *PubMed {
	if baseURL == "" {
		baseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &PubMed{
		baseURL:   strings.TrimRight(baseURL, "/"),
		email:     email,
		userAgent: userAgent,
		client:    client,
	}
}

// Name identifies the source in aggregated results.
func (p *PubMed) Name() string { return "pubmed" }

type esearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	IDList  struct {
		IDs []string `xml:"Id"`
	} `xml:"IdList"`
}

type pubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			ArticleTitle string `xml:"ArticleTitle"`
			Abstract     struct {
				Texts []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			AuthorList struct {
				Authors []struct {
					LastName string `xml:"LastName"`
					ForeName string `xml:"ForeName"`
				} `xml:"Author"`
			} `xml:"AuthorList"`
			Journal struct {
				Title        string `xml:"Title"`
				JournalIssue struct {
					PubDate struct {
						Year string `xml:"Year"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
		} `xml:"Article"`
		DateCompleted struct {
			Year string `xml:"Year"`
		} `xml:"DateCompleted"`
	} `xml:"MedlineCitation"`
}

// Search runs esearch to collect PMIDs, then efetch for article details.
func (p *PubMed) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if maxResults <= 0 {
		maxResults = 10
	}

	ids, err := p.esearch(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Paper{}, nil
	}
	return p.efetch(ctx, ids)
}

func (p *PubMed) esearch(ctx context.Context, query string, maxResults int) ([]string, error) {
	endpoint := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&term=%s&retmax=%d&retmode=xml%s",
		p.baseURL, url.QueryEscape(query), maxResults, p.emailParam())

	var decoded esearchResult
	if err := p.getXML(ctx, endpoint, &decoded); err != nil {
		return nil, err
	}
	return decoded.IDList.IDs, nil
}

func (p *PubMed) efetch(ctx context.Context, ids []string) ([]Paper, error) {
	endpoint := fmt.Sprintf("%s/efetch.fcgi?db=pubmed&id=%s&rettype=xml&retmode=xml%s",
		p.baseURL, url.QueryEscape(strings.Join(ids, ",")), p.emailParam())

	var decoded pubmedArticleSet
	if err := p.getXML(ctx, endpoint, &decoded); err != nil {
		return nil, err
	}

	papers := make([]Paper, 0, len(decoded.Articles))
	for _, article := range decoded.Articles {
		papers = append(papers, toPubMedPaper(article))
	}
	return papers, nil
}

func (p *PubMed) emailParam() string {
	if p.email == "" {
		return ""
	}
	return "&email=" + url.QueryEscape(p.email)
}

func (p *PubMed) getXML(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build pubmed request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pubmed request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pubmed returned status %d", resp.StatusCode)
	}
	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode pubmed response: %w", err)
	}
	return nil
}

func toPubMedPaper(article pubmedArticle) Paper {
	citation := article.MedlineCitation
	data := citation.Article

	authors := make([]string, 0, len(data.AuthorList.Authors))
	for _, a := range data.AuthorList.Authors {
		if a.ForeName != "" && a.LastName != "" {
			authors = append(authors, a.ForeName+" "+a.LastName)
		} else if a.LastName != "" {
			authors = append(authors, a.LastName)
		}
	}

	year := citation.DateCompleted.Year
	if year == "" {
		year = data.Journal.JournalIssue.PubDate.Year
	}

	pmid := strings.TrimSpace(citation.PMID)
	pubURL := ""
	if pmid != "" {
		pubURL = fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", pmid)
	}

	return Paper{
		Source:        "pubmed",
		ID:            pmid,
		Title:         strings.TrimSpace(data.ArticleTitle),
		Authors:       authors,
		Venue:         strings.TrimSpace(data.Journal.Title),
		Year:          year,
		Abstract:      strings.TrimSpace(strings.Join(data.Abstract.Texts, " ")),
		URL:           pubURL,
		CitationCount: 0,
	}
}
