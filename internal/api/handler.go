// Package api 提供仓库与库存台账相关的HTTP API处理器实现。
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_ledger/internal/domain"
	"github.com/MorseWayne/stock_ledger/internal/resp"
)

// writeDomainError 按领域错误分类写出响应；未知错误一律按内部错误处理。
func writeDomainError(w http.ResponseWriter, logger *zap.Logger, reqID, op string, err error) {
	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		// 库存不足返回 409，便于调用方与参数错误区分
		resp.Error(w, http.StatusConflict, resp.CodeConflict, insufficient.Error(), reqID, "")
		return
	}

	switch domain.KindOf(err) {
	case domain.KindNotFound:
		resp.Error(w, http.StatusNotFound, resp.CodeNotFound, err.Error(), reqID, "")
	case domain.KindInvariant:
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, err.Error(), reqID, "")
	case domain.KindConflict:
		resp.Error(w, http.StatusConflict, resp.CodeConflict, err.Error(), reqID, "")
	default:
		logger.Error(op+" failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, op+" failed", reqID, "")
	}
}

// pathID 从 URL 路径中提取第 index 段并解析为整型 ID。
// 例如 /api/v1/warehouses/{id} 中 id 位于第 4 段。
func pathID(path string, index int) (int64, error) {
	parts := strings.Split(path, "/")
	if len(parts) <= index {
		return 0, errors.New("invalid path")
	}
	return strconv.ParseInt(parts[index], 10, 64)
}

// queryInt64 解析可选的整型查询参数，缺失时返回 nil。
func queryInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
