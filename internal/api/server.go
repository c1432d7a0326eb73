package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/cart"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/settlement"
)

// CustomerHeader — заголовок с идентификатором аутентифицированного покупателя.
// Аутентификацию выполняет внешний контур; API доверяет заголовку.
const CustomerHeader = "X-Customer-ID"

// Server — HTTP JSON API поверх сервисов checkout-движка.
type Server struct {
	engine     *gin.Engine
	cart       *cart.Service
	machine    *checkout.Machine
	settlement *settlement.Workflow
	orders     domain.OrderRepository
	payments   domain.PaymentRepository
	timeline   domain.TimelineRepository
	logger     *log.Entry
}

// NewServer создаёт HTTP-сервер и регистрирует маршруты.
func NewServer(
	cartSvc *cart.Service,
	machine *checkout.Machine,
	settlementWf *settlement.Workflow,
	orders domain.OrderRepository,
	payments domain.PaymentRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Server {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		engine:     r,
		cart:       cartSvc,
		machine:    machine,
		settlement: settlementWf,
		orders:     orders,
		payments:   payments,
		timeline:   timeline,
		logger:     logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/api/v1")
	{
		cartGroup := v1.Group("/cart")
		cartGroup.GET("", s.viewCart)
		cartGroup.POST("/items", s.addItem)
		cartGroup.PUT("/items/:sku", s.updateItem)
		cartGroup.DELETE("/items/:sku", s.removeItem)
		cartGroup.POST("/coupon", s.applyCoupon)
		cartGroup.DELETE("/coupon", s.removeCoupon)

		v1.POST("/checkout", s.checkout)

		ordersGroup := v1.Group("/orders")
		ordersGroup.GET("", s.listOrders)
		ordersGroup.GET(":id", s.getOrder)
		ordersGroup.GET(":id/timeline", s.orderTimeline)
		ordersGroup.POST(":id/cancel", s.cancelOrder)
		ordersGroup.POST(":id/payments/intent", s.createIntent)
		ordersGroup.POST(":id/payments/remote-order", s.createRemoteOrder)

		paymentsGroup := v1.Group("/payments")
		paymentsGroup.POST("/intent/:ref/confirm", s.confirmIntent)
		paymentsGroup.POST("/remote-order/:ref/capture", s.captureRemoteOrder)
		paymentsGroup.POST(":id/refund", s.refundPayment)

		// Административные переходы доставки: ship и deliver выполняет
		// персонал склада, а не покупатель.
		admin := v1.Group("/admin/orders")
		admin.POST(":id/ship", s.shipOrder)
		admin.POST(":id/deliver", s.deliverOrder)
	}
}

// Cart handlers

type addItemReq struct {
	SKU string `json:"sku"`
	Qty int32  `json:"qty"`
}

func (s *Server) addItem(c *gin.Context) {
	customerID, ok := s.customerID(c)
	if !ok {
		return
	}
	var req addItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	order, shortages, err := s.cart.AddItem(customerID, req.SKU, req.Qty)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse(order, shortages))
}

type updateItemReq struct {
	Qty int32 `json:"qty"`
}

func (s *Server) updateItem(c *gin.Context) {
	customerID, ok := s.customerID(c)
	if !ok {
		return
	}
	var req updateItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	order, err := s.cart.UpdateItem(customerID, c.Param("sku"), req.Qty)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse(order, nil))
}

func (s *Server) removeItem(c *gin.Context) {
	customerID, ok := s.customerID(c)
	if !ok {
		return
	}
	order, err := s.cart.RemoveItem(customerID, c.Param("sku"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse(order, nil))
}

func (s *Server) viewCart(c *gin.Context) {
	customerID, ok := s.customerID(c)
	if !ok {
		return
	}
	order, shortages, err := s.cart.ViewCart(customerID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse(order, shortages))
}

type applyCouponReq struct {
	Code string `json:"code"`
}

func (s *Server) applyCoupon(c *gin.Context) {
	customerID, ok := s.customerID(c)
	if !ok {
		return
	}
	var req applyCouponReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	order, err := s.cart.ApplyCoupon(customerID, req.Code)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse(order, nil))
}

func (s *Server) removeCoupon(c *gin.Context) {
	customerID, ok := s.customerID(c)
	if !ok {
		return
	}
	order, err := s.cart.RemoveCoupon(customerID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse(order, nil))
}

// Order handlers

func (s *Server) checkout(c *gin.Context) {
	customerID, ok := s.customerID(c)
	if !ok {
		return
	}
	order, err := s.machine.Checkout(customerID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderResponse(order))
}

func (s *Server) listOrders(c *gin.Context) {
	customerID, ok := s.customerID(c)
	if !ok {
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x > 0 {
			limit = x
		}
	}
	orders, err := s.orders.ListByCustomer(customerID, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp := make([]orderDTO, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, orderResponse(order))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getOrder(c *gin.Context) {
	order, ok := s.customerOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, orderResponse(order))
}

func (s *Server) orderTimeline(c *gin.Context) {
	order, ok := s.customerOrder(c)
	if !ok {
		return
	}
	events, err := s.timeline.List(order.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp := make([]timelineDTO, 0, len(events))
	for _, event := range events {
		resp = append(resp, timelineDTO{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	c.JSON(http.StatusOK, resp)
}

type cancelOrderReq struct {
	Reason string `json:"reason"`
}

func (s *Server) cancelOrder(c *gin.Context) {
	order, ok := s.customerOrder(c)
	if !ok {
		return
	}
	var req cancelOrderReq
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "canceled by customer"
	}
	canceled, err := s.machine.Cancel(order.ID, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(canceled))
}

func (s *Server) shipOrder(c *gin.Context) {
	order, err := s.machine.Transition(c.Param("id"), domain.OrderStatusShipped, "")
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(order))
}

func (s *Server) deliverOrder(c *gin.Context) {
	order, err := s.machine.Transition(c.Param("id"), domain.OrderStatusDelivered, "")
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(order))
}

// Payment handlers

func (s *Server) createIntent(c *gin.Context) {
	order, ok := s.customerOrder(c)
	if !ok {
		return
	}
	payment, err := s.settlement.CreateIntent(order.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, paymentResponse(payment))
}

func (s *Server) createRemoteOrder(c *gin.Context) {
	order, ok := s.customerOrder(c)
	if !ok {
		return
	}
	payment, approvalURL, err := s.settlement.CreateRemoteOrder(order.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp := paymentResponse(payment)
	resp.ApprovalURL = approvalURL
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) confirmIntent(c *gin.Context) {
	payment, err := s.settlement.Confirm(c.Param("ref"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentResponse(payment))
}

func (s *Server) captureRemoteOrder(c *gin.Context) {
	payment, err := s.settlement.Capture(c.Param("ref"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentResponse(payment))
}

type refundReq struct {
	AmountMinor int64 `json:"amount_minor"`
}

func (s *Server) refundPayment(c *gin.Context) {
	var req refundReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	payment, err := s.settlement.Refund(c.Param("id"), req.AmountMinor)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentResponse(payment))
}

// Helpers

func (s *Server) customerID(c *gin.Context) (string, bool) {
	customerID := c.GetHeader(CustomerHeader)
	if customerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + CustomerHeader + " header"})
		return "", false
	}
	return customerID, true
}

// customerOrder загружает заказ из пути и проверяет принадлежность покупателю.
// Чужой заказ отдаётся как 404, чтобы не раскрывать существование идентификатора.
func (s *Server) customerOrder(c *gin.Context) (domain.Order, bool) {
	customerID, ok := s.customerID(c)
	if !ok {
		return domain.Order{}, false
	}
	order, err := s.orders.Get(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return domain.Order{}, false
	}
	if order.CustomerID != customerID {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrOrderNotFound.Error()})
		return domain.Order{}, false
	}
	return order, true
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := mapErrorToStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("unexpected error while handling request")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func mapErrorToStatus(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPaymentDeclined),
		errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DTOs

type lineItemDTO struct {
	SKU           string `json:"sku"`
	Qty           int32  `json:"qty"`
	PriceMinor    int64  `json:"price_minor"`
	SubtotalMinor int64  `json:"subtotal_minor"`
}

type couponDTO struct {
	Code          string `json:"code"`
	DiscountMinor int64  `json:"discount_minor"`
}

type shortageDTO struct {
	SKU       string `json:"sku"`
	Requested int32  `json:"requested"`
	Available int32  `json:"available"`
}

type orderDTO struct {
	ID            string        `json:"id"`
	OrderNumber   string        `json:"order_number,omitempty"`
	Status        string        `json:"status"`
	Currency      string        `json:"currency"`
	Items         []lineItemDTO `json:"items"`
	SubtotalMinor int64         `json:"subtotal_minor"`
	DiscountMinor int64         `json:"discount_minor"`
	AmountMinor   int64         `json:"amount_minor"`
	Coupon        *couponDTO    `json:"coupon,omitempty"`
	Shortages     []shortageDTO `json:"stock_shortages,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type paymentDTO struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Provider    string `json:"provider"`
	ProviderRef string `json:"provider_ref"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount_minor"`
	ApprovalURL string `json:"approval_url,omitempty"`
}

type timelineDTO struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

func orderResponse(order domain.Order) orderDTO {
	items := make([]lineItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, lineItemDTO{
			SKU:           item.SKU,
			Qty:           item.Qty,
			PriceMinor:    item.PriceMinor,
			SubtotalMinor: item.SubtotalMinor(),
		})
	}
	dto := orderDTO{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		Currency:      order.Currency,
		Items:         items,
		SubtotalMinor: order.SubtotalMinor(),
		DiscountMinor: order.DiscountMinor,
		AmountMinor:   order.AmountMinor,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
	if order.Coupon != nil {
		dto.Coupon = &couponDTO{Code: order.Coupon.Code, DiscountMinor: order.Coupon.DiscountMinor}
	}
	return dto
}

func cartResponse(order domain.Order, shortages []domain.StockShortage) orderDTO {
	dto := orderResponse(order)
	for _, shortage := range shortages {
		dto.Shortages = append(dto.Shortages, shortageDTO{
			SKU:       shortage.SKU,
			Requested: shortage.Requested,
			Available: shortage.Available,
		})
	}
	return dto
}

func paymentResponse(payment domain.Payment) paymentDTO {
	return paymentDTO{
		ID:          payment.ID,
		OrderID:     payment.OrderID,
		Provider:    payment.Provider,
		ProviderRef: payment.ProviderRef,
		Status:      string(payment.Status),
		AmountMinor: payment.AmountMinor,
	}
}
