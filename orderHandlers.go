package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bsm/redislock"
	"github.com/erpweb/erp_backend/config"
	"github.com/erpweb/erp_backend/models/reports"
	"github.com/erpweb/erp_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	msgQueryFailed    = "取得未結訂單資料失敗"
	msgExportFailed   = "匯出未結訂單失敗"
	msgExportTooLarge = "匯出筆數超過上限 %d 筆，請縮小查詢條件"
	msgExportBusy     = "匯出進行中，請稍後再試"
	msgInvalidFilter  = "查詢條件格式錯誤"
	msgInvalidDate    = "日期格式錯誤"
	msgDateOrder      = "開始日期不可晚於結束日期"

	exportLockTTL = 2 * time.Minute
)

// exportLock serializes exports per key; release must be called once obtained.
type exportLock func(ctx context.Context, key string) (release func(), err error)

// redisExportLock is a no-op until redis is connected.
func redisExportLock(ctx context.Context, key string) (func(), error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}
	lock, err := locker.Obtain(ctx, key, exportLockTTL, nil)
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}

var filterMessages = map[string]string{
	reports.ReasonDateFormat: msgInvalidDate,
	reports.ReasonDateOrder:  msgDateOrder,
}

// invalidFilter answers 400 with a localized message and the rejected field under "errors".
func invalidFilter(c *gin.Context, err error) {
	var fe *reports.FilterError
	if !errors.As(err, &fe) {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidFilter})
		return
	}
	msg, ok := filterMessages[fe.Reason]
	if !ok {
		msg = msgInvalidFilter
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"message": msg,
		"errors":  gin.H{fe.Field: fe.Error()},
	})
}

type orderHandler struct {
	report *reports.UndeliveredOrderReport
	lock   exportLock
	logger *logrus.Logger
}

func (h *orderHandler) test(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Orders route is working"})
}

func (h *orderHandler) undeliveredOrders(c *gin.Context) {
	f, err := reports.NormalizeFilter(c.Request.URL.Query())
	if err != nil {
		invalidFilter(c, err)
		return
	}

	page, err := h.report.Query(c.Request.Context(), f)
	if err != nil {
		config.LogError(h.logger, "orders", "undeliveredOrders", "query undelivered orders", f, err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": msgQueryFailed})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *orderHandler) exportUndeliveredOrders(c *gin.Context) {
	f, err := reports.NormalizeFilter(c.Request.URL.Query())
	if err != nil {
		invalidFilter(c, err)
		return
	}

	ctx := c.Request.Context()
	userId, _ := utils.GetUserIdFromContext(ctx)
	release, err := h.lock(ctx, "export:undeliveredOrders:"+strconv.Itoa(userId))
	switch {
	case errors.Is(err, redislock.ErrNotObtained):
		c.JSON(http.StatusTooManyRequests, gin.H{"message": msgExportBusy})
		return
	case err != nil:
		// lock backend trouble must not block exports
		h.logger.WithFields(logrus.Fields{
			"module":  "orders",
			"user_id": userId,
		}).Warn("export lock unavailable; exporting without lock: " + err.Error())
	default:
		defer release()
	}

	buf, err := h.report.Export(ctx, f)
	if errors.Is(err, reports.ErrExportTooLarge) {
		c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf(msgExportTooLarge, h.report.MaxExportRows())})
		return
	}
	if err != nil {
		config.LogError(h.logger, "orders", "exportUndeliveredOrders", "export undelivered orders", f, err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": msgExportFailed})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reports.UndeliveredOrderFilename))
	c.Data(http.StatusOK, reports.XlsxContentType, buf.Bytes())
}
