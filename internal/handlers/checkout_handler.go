package handlers

import (
	"errors"

	"tienda/internal/checkout"
	"tienda/internal/models"
	"tienda/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutHandler exposes the checkout state machine over HTTP.
type CheckoutHandler struct {
	service *services.CheckoutService
	logger  *zap.Logger
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(service *services.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the checkout routes with the Fiber app.
func (h *CheckoutHandler) RegisterRoutes(router fiber.Router) {
	r := router.Group("/checkout")
	r.Post("/", h.HandleOpen)
	r.Get("/:id", h.HandleGet)
	r.Post("/:id/items", h.HandleAddItem)
	r.Delete("/:id/items", h.HandleClearCart)
	r.Delete("/:id/items/:productId", h.HandleRemoveItem)
	r.Post("/:id/edit", h.HandleEditDetails)
	r.Put("/:id/details", h.HandleSubmitDetails)
	r.Post("/:id/back", h.HandleBack)
	r.Put("/:id/payment", h.HandleSelectPayment)
	r.Post("/:id/pay", h.HandlePay)
}

// sessionView is the JSON shape of a checkout session.
type sessionView struct {
	ID             string                 `json:"id"`
	State          checkout.StateName     `json:"state"`
	Items          []checkout.CartEntry   `json:"items"`
	Subtotal       decimal.Decimal        `json:"subtotal"`
	SubtotalLocal  decimal.Decimal        `json:"subtotal_local"`
	Rate           models.ExchangeRate    `json:"rate"`
	Details        *checkout.Details      `json:"details,omitempty"`
	Errors         map[string]string      `json:"errors,omitempty"`
	PaymentMethod  models.PaymentMethod   `json:"payment_method,omitempty"`
	PaymentMethods []models.PaymentMethod `json:"payment_methods,omitempty"`
	LastError      string                 `json:"last_error,omitempty"`
	OrderID        string                 `json:"order_id,omitempty"`
	RedirectURL    string                 `json:"redirect_url,omitempty"`
}

func viewOf(s *checkout.Session) sessionView {
	v := sessionView{
		ID:            s.ID,
		State:         s.State.Name(),
		Items:         checkout.CartOf(s.State).Entries(),
		Subtotal:      s.Subtotal(),
		SubtotalLocal: s.SubtotalLocal(),
		Rate:          s.Rate,
	}
	switch st := s.State.(type) {
	case checkout.PersonalAndDeliveryDetails:
		v.Details = &st.Details
		v.Errors = st.Errors
	case checkout.PaymentSelection:
		v.Details = &st.Details
		v.PaymentMethod = st.Payment
		v.LastError = st.LastError
		for _, m := range []models.PaymentMethod{models.PaymentCash, models.PaymentElectronic} {
			if m.AllowedFor(st.Details.DeliveryMethod) {
				v.PaymentMethods = append(v.PaymentMethods, m)
			}
		}
	case checkout.PaymentSuccess:
		v.Details = &st.Details
		v.PaymentMethod = st.Payment
		v.OrderID = st.OrderID
	case checkout.Redirected:
		v.OrderID = st.OrderID
		v.RedirectURL = st.RedirectURL
	}
	return v
}

// reply writes the session, or the error when there is no session. A
// rejected details form still returns the session with its field errors.
func (h *CheckoutHandler) reply(c *fiber.Ctx, session *checkout.Session, err error, message string) error {
	if err == nil {
		return c.JSON(viewOf(session))
	}
	var verr *services.ValidationError
	if session != nil && errors.As(err, &verr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(viewOf(session))
	}
	if session != nil && errors.Is(err, services.ErrPaymentProcessor) {
		return c.Status(fiber.StatusBadGateway).JSON(viewOf(session))
	}
	return respondError(c, h.logger, err, message)
}

// HandleOpen starts a checkout session.
func (h *CheckoutHandler) HandleOpen(c *fiber.Ctx) error {
	session, err := h.service.Open(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, err, "Could not start checkout")
	}
	return c.Status(fiber.StatusCreated).JSON(viewOf(session))
}

// HandleGet returns a checkout session.
func (h *CheckoutHandler) HandleGet(c *fiber.Ctx) error {
	session, err := h.service.Get(c.UserContext(), c.Params("id"))
	return h.reply(c, session, err, "Could not retrieve checkout")
}

// HandleAddItem adds a product to the cart.
func (h *CheckoutHandler) HandleAddItem(c *fiber.Ctx) error {
	var body struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badBody(c, err)
	}
	if body.ProductID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  fiber.Map{"product_id": "is required"},
		})
	}

	session, err := h.service.AddItem(c.UserContext(), c.Params("id"), body.ProductID, body.Quantity)
	if err != nil {
		return respondError(c, h.logger, err, "Could not add item")
	}
	return c.JSON(viewOf(session))
}

// HandleRemoveItem drops a product from the cart.
func (h *CheckoutHandler) HandleRemoveItem(c *fiber.Ctx) error {
	session, err := h.service.RemoveItem(c.UserContext(), c.Params("id"), c.Params("productId"))
	return h.reply(c, session, err, "Could not remove item")
}

// HandleClearCart empties the cart.
func (h *CheckoutHandler) HandleClearCart(c *fiber.Ctx) error {
	session, err := h.service.ClearCart(c.UserContext(), c.Params("id"))
	return h.reply(c, session, err, "Could not clear cart")
}

// HandleEditDetails opens the details form.
func (h *CheckoutHandler) HandleEditDetails(c *fiber.Ctx) error {
	session, err := h.service.EditDetails(c.UserContext(), c.Params("id"))
	return h.reply(c, session, err, "Could not open details form")
}

// HandleSubmitDetails validates the personal and delivery details.
func (h *CheckoutHandler) HandleSubmitDetails(c *fiber.Ctx) error {
	var details checkout.Details
	if err := c.BodyParser(&details); err != nil {
		return badBody(c, err)
	}
	session, err := h.service.SubmitDetails(c.UserContext(), c.Params("id"), details)
	return h.reply(c, session, err, "Could not submit details")
}

// HandleBack steps one screen back.
func (h *CheckoutHandler) HandleBack(c *fiber.Ctx) error {
	session, err := h.service.Back(c.UserContext(), c.Params("id"))
	return h.reply(c, session, err, "Could not go back")
}

type paymentBody struct {
	PaymentMethod models.PaymentMethod `json:"payment_method"`
}

// HandleSelectPayment chooses the payment method.
func (h *CheckoutHandler) HandleSelectPayment(c *fiber.Ctx) error {
	var body paymentBody
	if err := c.BodyParser(&body); err != nil {
		return badBody(c, err)
	}
	if !body.PaymentMethod.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  fiber.Map{"payment_method": "must be one of: cash electronic"},
		})
	}
	session, err := h.service.SelectPayment(c.UserContext(), c.Params("id"), body.PaymentMethod)
	return h.reply(c, session, err, "Could not select payment method")
}

// HandlePay places the order and completes or hands off the payment. The
// body is optional; a payment_method in it is selected first.
func (h *CheckoutHandler) HandlePay(c *fiber.Ctx) error {
	var body paymentBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return badBody(c, err)
		}
	}
	if body.PaymentMethod != "" && !body.PaymentMethod.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  fiber.Map{"payment_method": "must be one of: cash electronic"},
		})
	}
	session, err := h.service.Pay(c.UserContext(), c.Params("id"), body.PaymentMethod)
	return h.reply(c, session, err, "Could not complete payment")
}
