package cart

import (
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/coupon"
	"github.com/vladislavdragonenkov/checkout/internal/service/stock"
)

// Service реализует операции над корзиной покупателя.
// Корзина — это заказ в статусе cart: изменяемый, не более одного на
// покупателя. Корзина создаётся лениво при первом добавлении товара и
// никогда не резервирует сток — резервация происходит только на checkout.
type Service struct {
	orders   domain.OrderRepository
	products domain.ProductRepository
	coupons  *coupon.Engine
	ledger   *stock.Ledger
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис корзины.
func NewService(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	coupons *coupon.Engine,
	ledger *stock.Ledger,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart-service")
	}
	return &Service{
		orders:   orders,
		products: products,
		coupons:  coupons,
		ledger:   ledger,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddItem добавляет товар в корзину покупателя (или увеличивает количество
// существующей позиции) со снимком текущей цены каталога.
// Сток здесь не резервируется; нехватка возвращается как мягкие предупреждения,
// не блокирующие добавление.
func (s *Service) AddItem(customerID, sku string, qty int32) (domain.Order, []domain.StockShortage, error) {
	if qty < 1 {
		return domain.Order{}, nil, domain.ErrInvalidQuantity
	}

	product, err := s.products.Get(sku)
	if err != nil {
		return domain.Order{}, nil, err
	}

	cart, err := s.loadOrCreateCart(customerID)
	if err != nil {
		return domain.Order{}, nil, err
	}

	now := s.now()
	if item := cart.FindItem(sku); item != nil {
		item.Qty += qty
		item.PriceMinor = product.PriceMinor
	} else {
		cart.Items = append(cart.Items, domain.LineItem{
			ID:         uuid.NewString(),
			SKU:        sku,
			Qty:        qty,
			PriceMinor: product.PriceMinor,
			CreatedAt:  now,
		})
	}

	saved, err := s.persist(cart)
	if err != nil {
		return domain.Order{}, nil, err
	}

	shortages, err := s.ledger.Shortages(saved.Items)
	if err != nil {
		// Предупреждения — best-effort: сам товар уже в корзине.
		s.logger.WithError(err).WithField("customer_id", customerID).Warn("stock shortage check failed")
		shortages = nil
	}
	return saved, shortages, nil
}

// UpdateItem меняет количество позиции. qty=0 удаляет позицию; qty>0
// проверяется против текущего остатка каталога и при нехватке отклоняется.
func (s *Service) UpdateItem(customerID, sku string, qty int32) (domain.Order, error) {
	if qty < 0 {
		return domain.Order{}, domain.ErrInvalidQuantity
	}

	cart, err := s.orders.GetCart(customerID)
	if err != nil {
		return domain.Order{}, err
	}

	item := cart.FindItem(sku)
	if item == nil {
		return domain.Order{}, domain.ErrProductNotFound
	}

	if qty == 0 {
		cart.RemoveItem(sku)
		return s.persist(cart)
	}

	product, err := s.products.Get(sku)
	if err != nil {
		return domain.Order{}, err
	}
	if product.Stock < qty {
		return domain.Order{}, &domain.InsufficientStockError{
			SKU:       sku,
			Requested: qty,
			Available: product.Stock,
		}
	}

	item.Qty = qty
	item.PriceMinor = product.PriceMinor
	return s.persist(cart)
}

// RemoveItem удаляет позицию из корзины.
func (s *Service) RemoveItem(customerID, sku string) (domain.Order, error) {
	cart, err := s.orders.GetCart(customerID)
	if err != nil {
		return domain.Order{}, err
	}
	if !cart.RemoveItem(sku) {
		return domain.Order{}, domain.ErrProductNotFound
	}
	return s.persist(cart)
}

// ViewCart возвращает корзину покупателя вместе с предупреждениями о нехватке
// стока. Отсутствующая корзина читается как пустая и не создаётся.
func (s *Service) ViewCart(customerID string) (domain.Order, []domain.StockShortage, error) {
	cart, err := s.orders.GetCart(customerID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return s.emptyCart(customerID), nil, nil
	}
	if err != nil {
		return domain.Order{}, nil, err
	}

	shortages, err := s.ledger.Shortages(cart.Items)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Warn("stock shortage check failed")
		shortages = nil
	}
	return cart, shortages, nil
}

// ApplyCoupon валидирует код и сохраняет денормализованный снимок купона.
// Повторное применение того же кода пересчитывает скидку, а не суммирует её.
func (s *Service) ApplyCoupon(customerID, code string) (domain.Order, error) {
	cart, err := s.orders.GetCart(customerID)
	if err != nil {
		return domain.Order{}, err
	}

	c, err := s.coupons.Validate(code, cart.SubtotalMinor(), s.now())
	if err != nil {
		return domain.Order{}, err
	}

	cart.Coupon = &domain.AppliedCoupon{
		Code:          c.Code,
		DiscountMinor: coupon.Discount(c, cart.SubtotalMinor()),
	}
	return s.persist(cart)
}

// RemoveCoupon снимает купон с корзины.
func (s *Service) RemoveCoupon(customerID string) (domain.Order, error) {
	cart, err := s.orders.GetCart(customerID)
	if err != nil {
		return domain.Order{}, err
	}
	cart.Coupon = nil
	return s.persist(cart)
}

// persist перепроверяет купон, пересчитывает итог и сохраняет корзину.
// Купон, переставший проходить валидацию (истёк, сумма упала ниже минимума),
// снимается молча: корзина остаётся консистентной без участия покупателя.
func (s *Service) persist(cart domain.Order) (domain.Order, error) {
	if cart.Coupon != nil {
		c, err := s.coupons.Validate(cart.Coupon.Code, cart.SubtotalMinor(), s.now())
		if err != nil {
			s.logger.WithFields(log.Fields{
				"customer_id": cart.CustomerID,
				"code":        cart.Coupon.Code,
			}).Info("coupon no longer valid, dropping from cart")
			cart.Coupon = nil
		} else {
			cart.Coupon.DiscountMinor = coupon.Discount(c, cart.SubtotalMinor())
		}
	}

	cart.Recalculate()
	cart.UpdatedAt = s.now()

	if err := s.orders.Save(cart); err != nil {
		return domain.Order{}, err
	}
	return s.orders.Get(cart.ID)
}

// loadOrCreateCart возвращает активную корзину или лениво создаёт новую.
func (s *Service) loadOrCreateCart(customerID string) (domain.Order, error) {
	cart, err := s.orders.GetCart(customerID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrCartNotFound) {
		return domain.Order{}, err
	}

	cart = s.emptyCart(customerID)
	if err := s.orders.Create(cart); err != nil {
		// Гонка двух первых добавлений: корзину успел создать параллельный запрос.
		if domain.IsVersionConflict(err) {
			return s.orders.GetCart(customerID)
		}
		return domain.Order{}, err
	}
	return cart, nil
}

func (s *Service) emptyCart(customerID string) domain.Order {
	now := s.now()
	return domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Status:     domain.OrderStatusCart,
		Currency:   "USD",
		Items:      []domain.LineItem{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
