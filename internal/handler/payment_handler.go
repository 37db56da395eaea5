package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// queryToMap flattens the query parameters to the single-valued map the
// gateway adapter verifies against.
func queryToMap(c *gin.Context) map[string]string {
	params := make(map[string]string)
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}

// VNPayIPN is the server-to-server completion callback. The reply is always
// HTTP 200 with the gateway's RspCode envelope; VNPay retries delivery
// until it sees RspCode 00 or 02.
// GET /payment/vnpay/callback
func (h *Handler) VNPayIPN(c *gin.Context) {
	result := h.paymentService.ProcessIPN(c.Request.Context(), queryToMap(c))
	c.JSON(http.StatusOK, result)
}

// VNPayReturn is the browser redirect target. Display only; no state
// changes happen here.
// GET /payment/vnpay/return
func (h *Handler) VNPayReturn(c *gin.Context) {
	result := h.paymentService.ProcessReturn(c.Request.Context(), queryToMap(c))
	c.JSON(http.StatusOK, result)
}

// QRCallback is the bank-transfer confirmation webhook.
// POST /payment/qr/callback
func (h *Handler) QRCallback(c *gin.Context) {
	var params map[string]string
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusOK, gin.H{"RspCode": "99", "Message": "Invalid Payload"})
		return
	}

	result := h.paymentService.ProcessQRCallback(c.Request.Context(), params)
	c.JSON(http.StatusOK, result)
}
