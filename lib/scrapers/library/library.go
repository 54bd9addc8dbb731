// Package library scrapes the campus OPAC (book catalog) at
// 210.35.66.106: keyword search and per-book holding previews. The
// catalog is public, no session required.
package library

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"

	"kite-agent/lib/campus"
)

var tracer = otel.Tracer("scrapers/library")

// SearchWay selects which bibliographic field the query matches.
type SearchWay string

const (
	SearchAny         SearchWay = ""
	SearchTitle       SearchWay = "title"
	SearchTitleProper SearchWay = "title200a"
	SearchISBN        SearchWay = "isbn"
	SearchAuthor      SearchWay = "author"
	SearchSubject     SearchWay = "subject"
	SearchClassNo     SearchWay = "class"
	SearchCtrlNo      SearchWay = "ctrlno"
	SearchOrderNo     SearchWay = "orderno"
	SearchPublisher   SearchWay = "publisher"
	SearchCallNo      SearchWay = "callno"
)

type SortWay string

const (
	SortMatchScore  SortWay = "score"
	SortPublishDate SortWay = "pubdate_sort"
	SortSubject     SortWay = "subject_sort"
	SortTitle       SortWay = "title_sort"
	SortAuthor      SortWay = "author_sort"
	SortCallNo      SortWay = "callno_sort"
	SortPinyin      SortWay = "pinyin_sort"
	SortLoanCount   SortWay = "loannum_sort"
	SortRenewCount  SortWay = "renew_sort"
)

type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

type SearchOptions struct {
	Keyword   string
	Rows      int
	Page      int
	SearchWay SearchWay
	SortWay   SortWay
	SortOrder SortOrder
}

type Book struct {
	BookID      string `cbor:"book_id"`
	ISBN        string `cbor:"isbn"`
	Title       string `cbor:"title"`
	Author      string `cbor:"author"`
	Publisher   string `cbor:"publisher"`
	PublishDate string `cbor:"publish_date"`
	CallNo      string `cbor:"call_no"`
}

type SearchResult struct {
	ResultCount int     `cbor:"result_count"`
	UseTime     float64 `cbor:"use_time"`
	CurrentPage int     `cbor:"current_page"`
	TotalPages  int     `cbor:"total_pages"`
	Books       []Book  `cbor:"book_list"`
}

// HoldingPreview is where one copy of a book lives and whether it can
// be borrowed right now.
type HoldingPreview struct {
	CallNo        string `cbor:"call_no" json:"callno"`
	LibraryCode   string `cbor:"library_code" json:"curlib"`
	LibraryName   string `cbor:"library_name" json:"curlibName"`
	Location      string `cbor:"location" json:"curlocal"`
	LocationName  string `cbor:"location_name" json:"curlocalName"`
	Total         int    `cbor:"total" json:"copycount"`
	LoanableCount int    `cbor:"loanable_count" json:"loanableCount"`
	ShelfNo       string `cbor:"shelf_no" json:"shelfno"`
	Barcode       string `cbor:"barcode" json:"barcode"`
}

type Client struct {
	BaseURL string
	Http    *campus.Client
}

func NewClient(http *campus.Client) *Client {
	return &Client{
		BaseURL: "http://210.35.66.106",
		Http:    http,
	}
}

func (c *Client) Search(ctx context.Context, opts SearchOptions) (*SearchResult, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	if opts.Rows == 0 {
		opts.Rows = 10
	}
	if opts.Page == 0 {
		opts.Page = 1
	}
	if opts.SortWay == "" {
		opts.SortWay = SortMatchScore
	}
	if opts.SortOrder == "" {
		opts.SortOrder = OrderDesc
	}

	query := url.Values{}
	query.Set("q", opts.Keyword)
	query.Set("searchType", "standard")
	query.Set("isFacet", "true")
	query.Set("view", "standard")
	query.Set("searchWay", string(opts.SearchWay))
	query.Set("rows", strconv.Itoa(opts.Rows))
	query.Set("sortWay", string(opts.SortWay))
	query.Set("sortOrder", string(opts.SortOrder))
	query.Set("hasholding", "1")
	query.Set("searchWay0", "marc")
	query.Set("logical0", "AND")
	query.Set("page", strconv.Itoa(opts.Page))

	res, err := c.Http.Get(ctx, c.BaseURL+"/opac/search?"+query.Encode())
	if err != nil {
		return nil, err
	}
	return ParseSearchPage(res.Body())
}

// GetHoldingPreviews looks up holdings for a batch of books, keyed by
// book id in the response.
func (c *Client) GetHoldingPreviews(ctx context.Context, bookIDs []string) (map[string][]HoldingPreview, error) {
	ctx, span := tracer.Start(ctx, "GetHoldingPreviews")
	defer span.End()

	res, err := c.Http.PostForm(ctx, c.BaseURL+"/opac/book/holdingPreviews", map[string]string{
		"bookrecnos":  strings.Join(bookIDs, ","),
		"curLibcodes": "",
		"return_fmt":  "json",
	})
	if err != nil {
		return nil, err
	}

	var doc struct {
		Previews map[string][]HoldingPreview `json:"previews"`
	}
	if err := json.Unmarshal(res.Body(), &doc); err != nil {
		return nil, err
	}
	return doc.Previews, nil
}

var (
	commaNumberRegex = regexp.MustCompile(`(\d+,?)+`)
	useTimeRegex     = regexp.MustCompile(`检索时间: (\d+(?:\.\d+)?)`)
)

func parseCommaNumber(s string) int {
	n, _ := strconv.Atoi(strings.ReplaceAll(commaNumberRegex.FindString(s), ",", ""))
	return n
}

func ParseSearchPage(page []byte) (*SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(page))
	if err != nil {
		return nil, err
	}

	result := &SearchResult{}

	meta := doc.Find("#search_meta > div:nth-child(1)").Text()
	result.ResultCount = parseCommaNumber(meta)
	if m := useTimeRegex.FindStringSubmatch(meta); m != nil {
		result.UseTime, _ = strconv.ParseFloat(m[1], 64)
	}

	pager := doc.Find("div.meneame:nth-child(4)")
	result.CurrentPage, _ = strconv.Atoi(strings.TrimSpace(pager.Find("b:nth-child(4)").Text()))
	result.TotalPages = parseCommaNumber(pager.Find("span:nth-child(1)").Text())

	doc.Find(".resultTable > tbody:nth-child(1) > tr").Each(func(_ int, row *goquery.Selection) {
		cover := row.Find(".bookcover_img")

		publishDate := row.Find("td:nth-child(4) > div:nth-child(1) > div:nth-child(3)").Text()
		if _, after, found := strings.Cut(publishDate, "出版日期:"); found {
			publishDate = strings.TrimSpace(after)
		}

		result.Books = append(result.Books, Book{
			BookID:      cover.AttrOr("bookrecno", ""),
			ISBN:        cover.AttrOr("isbn", ""),
			Title:       strings.TrimSpace(row.Find(".title-link").Text()),
			Author:      strings.TrimSpace(row.Find(".author-link").Text()),
			Publisher:   strings.TrimSpace(row.Find(".publisher-link").Text()),
			PublishDate: publishDate,
			CallNo:      strings.TrimSpace(row.Find(".callnosSpan").Text()),
		})
	})

	return result, nil
}
