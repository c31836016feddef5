package domain

import (
	"strings"
)

// Sku 商品编码值对象：统一转为大写，长度 3~50，按值比较，不可变。
type Sku string

const (
	skuMinLen = 3
	skuMaxLen = 50
)

// NewSku 规范化并校验商品编码。
func NewSku(raw string) (Sku, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if len(s) < skuMinLen || len(s) > skuMaxLen {
		return "", NewInvariant("invalid sku %q: length must be between %d and %d", raw, skuMinLen, skuMaxLen)
	}
	for _, r := range s {
		if !isSkuRune(r) {
			return "", NewInvariant("invalid sku %q: only letters, digits, '-' and '_' are allowed", raw)
		}
	}
	return Sku(s), nil
}

// isSkuRune 仅允许大写字母、数字、连字符与下划线。
func isSkuRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}

func (s Sku) String() string { return string(s) }

// Quantity 非负数量值对象。
type Quantity int64

// NewQuantity 校验并构造数量。
func NewQuantity(n int64) (Quantity, error) {
	if n < 0 {
		return 0, NewInvariant("quantity cannot be negative: %d", n)
	}
	return Quantity(n), nil
}

// Int64 返回原始数量值。
func (q Quantity) Int64() int64 { return int64(q) }
