package models

import "time"

// FromMicros 线上时间戳（epoch 微秒）转为本地时区的 time.Time
func FromMicros(ts int64) time.Time {
	return time.UnixMicro(ts)
}

// ToMicros time.Time 转为 epoch 微秒，亚微秒部分截断
func ToMicros(t time.Time) int64 {
	return t.UnixMicro()
}
