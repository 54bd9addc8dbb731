package library

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const searchPage = `<html><body>
<div id="search_meta"><div>检索到 55,720 条结果 检索时间: 0.25 秒</div></div>
<div class="x"></div><div class="y"></div><div class="z"></div>
<div class="meneame"><span>共 5,572 页</span><a>1</a><a>2</a><b>3</b></div>
<table class="resultTable"><tbody>
<tr>
	<td>1</td>
	<td><img class="bookcover_img" bookrecno="1486322" isbn="9787111128069"/></td>
	<td>x</td>
	<td><div>
		<div><a class="title-link">Go程序设计语言</a></div>
		<div><a class="author-link">Alan Donovan</a> <a class="publisher-link">机械工业出版社</a></div>
		<div>出版日期: 2017</div>
	</div></td>
	<td><span class="callnosSpan">TP312/1234</span></td>
</tr>
</tbody></table>
</body></html>`

func TestParseSearchPage(t *testing.T) {
	result, err := ParseSearchPage([]byte(searchPage))
	require.NoError(t, err)

	require.Equal(t, 55720, result.ResultCount)
	require.InDelta(t, 0.25, result.UseTime, 1e-9)
	require.Equal(t, 3, result.CurrentPage)
	require.Equal(t, 5572, result.TotalPages)

	require.Len(t, result.Books, 1)
	book := result.Books[0]
	require.Equal(t, "1486322", book.BookID)
	require.Equal(t, "9787111128069", book.ISBN)
	require.Equal(t, "Go程序设计语言", book.Title)
	require.Equal(t, "机械工业出版社", book.Publisher)
	require.Equal(t, "2017", book.PublishDate)
	require.Equal(t, "TP312/1234", book.CallNo)
}

func TestParseSearchPageEmpty(t *testing.T) {
	result, err := ParseSearchPage([]byte("<html><body>无结果</body></html>"))
	require.NoError(t, err)
	require.Zero(t, result.ResultCount)
	require.Empty(t, result.Books)
}

func TestHoldingPreviewDecoding(t *testing.T) {
	payload := `{"previews":{"1486322":[{
		"callno":"TP312/1234","curlib":"SIT","curlibName":"奉贤校区图书馆",
		"curlocal":"A3","curlocalName":"三楼书库","copycount":5,
		"loanableCount":2,"shelfno":"12-3","barcode":"B000001"
	}]}}`

	var doc struct {
		Previews map[string][]HoldingPreview `json:"previews"`
	}
	require.NoError(t, json.Unmarshal([]byte(payload), &doc))

	previews := doc.Previews["1486322"]
	require.Len(t, previews, 1)
	require.Equal(t, "奉贤校区图书馆", previews[0].LibraryName)
	require.Equal(t, 5, previews[0].Total)
	require.Equal(t, 2, previews[0].LoanableCount)
}

func TestParseCommaNumber(t *testing.T) {
	require.Equal(t, 55720, parseCommaNumber("共 55,720 条"))
	require.Equal(t, 7, parseCommaNumber("7"))
	require.Zero(t, parseCommaNumber("none"))
}
