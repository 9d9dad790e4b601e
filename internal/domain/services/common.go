package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"sams-http-service/internal/error/code"
)

// clock 返回当前UTC时间，测试中替换
type clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

// dbError 包装存储错误，记录不存在时返回 notFound 对应的业务错误
func dbError(err error, notFound int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) && notFound != 0 {
		return code.New(notFound, "")
	}
	var ce *code.Error
	if errors.As(err, &ce) {
		return err
	}
	return code.Wrap(code.ErrDatabase, err)
}

func uintPtr(v uint) *uint {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
