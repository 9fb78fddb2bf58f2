package services

import (
	"time"

	"matcha-back/models"
)

// NormalizeTimestamp collapses the store's dual timestamp representation
// into epoch milliseconds. A pending server stamp reads as the current local
// time until the resolved value arrives, and a missing value reads as now.
// Both approximations can momentarily reorder entries once the authoritative
// value shows up.
func NormalizeTimestamp(ts models.Timestamp) int64 {
	if ts.Resolved != nil {
		return ts.Resolved.UnixMilli()
	}
	if ts.Pending {
		return time.Now().UnixMilli()
	}
	if ts.Millis > 0 {
		return ts.Millis
	}
	return time.Now().UnixMilli()
}

// NowMillis は現在時刻をエポックミリ秒で返します
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
