package cache

import (
	"time"
)

// DefaultRefreshHour is the UTC hour at which Scryfall publishes its daily bulk data.
const DefaultRefreshHour = 9

// TimeUntilNextRefresh は now から次の日次更新時刻（loc における hour 時）までの期間を返します。
func TimeUntilNextRefresh(now time.Time, hour int, loc *time.Location) time.Duration {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, loc)

	// 今日の更新時刻を過ぎている場合は翌日の更新時刻を使用
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
