package service

import (
	"errors"
	"fmt"
)

var (
	ErrStorageUnavailable  = errors.New("存储暂不可用")
	ErrDuplicateCredential = errors.New("口令已存在")
	ErrInvalidDuration     = errors.New("不支持的授权时长")
	ErrEmptyCredential     = errors.New("口令不能为空")
	ErrGeneratorFailed     = errors.New("回复生成失败")
)

// storageErr 把底层错误归类为存储不可用，保留原始错误链
func storageErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

func generatorErr(err error) error {
	return fmt.Errorf("%w: %w", ErrGeneratorFailed, err)
}
