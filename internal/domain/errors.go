// Package domain 定义多仓库存台账的领域模型与核心业务规则。
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类，决定调用方的处理策略。
type ErrorKind int

const (
	// KindNotFound 资源不存在，终态错误，调用方不应重试
	KindNotFound ErrorKind = iota + 1
	// KindInvariant 违反领域不变量（超卖、负库存等），终态错误，需要调用方修正输入
	KindInvariant
	// KindConflict 乐观锁版本冲突，可重新加载后重试
	KindConflict
	// KindInfrastructure 存储或传输层故障，由持久化协作方负责退避重试
	KindInfrastructure
)

// Error 领域错误，携带分类信息供编排层与 API 层分流处理。
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewNotFound 构造资源不存在错误。
func NewNotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewInvariant 构造不变量违规错误。
func NewInvariant(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvariant, Message: fmt.Sprintf(format, args...)}
}

// NewConflict 构造版本冲突错误。
func NewConflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// NewInfrastructure 包装基础设施错误。
func NewInfrastructure(message string, err error) *Error {
	return &Error{Kind: KindInfrastructure, Message: message, Err: err}
}

// InsufficientStockError 可售库存不足；携带可用量与请求量供调用方报告。
// 该错误属于 KindInvariant：预留操作不允许部分成功。
type InsufficientStockError struct {
	Sku       Sku
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available=%d, requested=%d",
		e.Sku, e.Available, e.Requested)
}

// KindOf 返回错误的领域分类；非领域错误一律视为基础设施错误。
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		return KindInvariant
	}
	return KindInfrastructure
}

// IsNotFound 判断是否为资源不存在错误。
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsInvariant 判断是否为不变量违规错误。
func IsInvariant(err error) bool { return KindOf(err) == KindInvariant }

// IsConflict 判断是否为版本冲突错误。
func IsConflict(err error) bool { return KindOf(err) == KindConflict }
