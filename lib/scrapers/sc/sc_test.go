package sc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kite-agent/lib/timezone"
)

func TestParseActivityListPage(t *testing.T) {
	page := `<html><body><ul class="ul_7">
		<li><a href="/public/activity/activityDetail.action?activityId=2077218">讲座一</a></li>
		<li><a href="/public/activity/activityDetail.action?activityId=2077219">讲座二</a></li>
		<li><a href="javascript:void(0)">无编号</a></li>
	</ul></body></html>`

	activities, err := ParseActivityListPage([]byte(page))
	require.NoError(t, err)
	require.Len(t, activities, 2)
	require.Equal(t, 2077218, activities[0].ID)
	require.Equal(t, 2077219, activities[1].ID)
}

func TestParseActivityDetailPage(t *testing.T) {
	page := `<html><body><div class="box-1">
	<h1> 安全教育讲座 </h1>
	<div style=" color:#7a7a7a; text-align:center">
		活动编号：2077218<br/>
		活动开始时间：2022-05-20 14:00:00<br/>
		刷卡时间段：2022-05-20 13:30:00  --至--  2022-05-20 14:30:00<br/>
		活动地点：大学生活动中心<br/>
		活动时长：1小时<br/>
		负责人：张老师<br/>
		负责人电话：021-12345678<br/>
		主办方：学生处<br/>
		承办方：校团委<br/>
	</div>
	<div style="padding:30px 50px; font-size:14px;">请全体新生准时参加。</div>
	</div></body></html>`

	detail, err := ParseActivityDetailPage([]byte(page))
	require.NoError(t, err)
	require.Equal(t, 2077218, detail.ID)
	require.Equal(t, "安全教育讲座", detail.Title)
	require.Equal(t, "大学生活动中心", detail.Place)
	require.Equal(t, "张老师", detail.Manager)
	require.Equal(t, "校团委", detail.Undertaker)
	require.Contains(t, detail.Description, "请全体新生准时参加")

	want := time.Date(2022, 5, 20, 14, 0, 0, 0, timezone.Location)
	require.True(t, detail.StartTime.Equal(want))
	require.True(t, detail.SignEndTime.After(detail.SignStartTime))
}

func TestParseActivityDetailPageNoFrame(t *testing.T) {
	_, err := ParseActivityDetailPage([]byte("<html><body>404</body></html>"))
	require.Error(t, err)
}

func TestParseMyActivityPage(t *testing.T) {
	page := `<html><body><table width="100%"><tbody>
	<tr>
		<td>志愿服务</td><td>公益志愿</td><td>A1024</td>
		<td>2022-04-01 10:00:00</td><td>+1.5(公益志愿)</td>
	</tr>
	</tbody></table></body></html>`

	activities, err := ParseMyActivityPage([]byte(page))
	require.NoError(t, err)
	require.Len(t, activities, 1)
	require.Equal(t, "志愿服务", activities[0].Title)
	require.Equal(t, "A1024", activities[0].ApplyID)
	require.Equal(t, 1.5, activities[0].Score)
	require.Equal(t, 2022, activities[0].ApplyTime.Year())
}

func TestParseMyScorePage(t *testing.T) {
	page := `<html><body><div id="div1"><div class="table_style_4"><form>
	<table></table><table></table><table></table>
	<table>
	<tbody>
	<tr><td>1</td><td>讲座</td><td>2077218</td><td>x</td><td><span>0.5</span></td></tr>
	<tr><td>2</td><td>讲座</td><td>2077219</td><td>x</td><td><span>0</span></td></tr>
	</tbody>
	</table>
	</form></div></div></body></html>`

	items, err := ParseMyScorePage([]byte(page))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 2077218, items[0].ActivityID)
	require.Equal(t, 0.5, items[0].Amount)
}

func TestParseJoinResult(t *testing.T) {
	require.NoError(t, ParseJoinResult([]byte("0")))

	err := ParseJoinResult([]byte("2"))
	require.ErrorContains(t, err, "不能重复申请")

	err = ParseJoinResult([]byte("99"))
	require.ErrorContains(t, err, "未知错误")

	err = ParseJoinResult([]byte("<html>oops</html>"))
	require.ErrorContains(t, err, "unrecognized")
}
