package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/Jonas0119/zhzb/internal/zhzb/events"
	"github.com/Jonas0119/zhzb/internal/zhzb/ledger"
	"github.com/Jonas0119/zhzb/internal/zhzb/models"
	"github.com/Jonas0119/zhzb/internal/zhzb/repository"
)

// MarketService is the settlement engine: it lists points for sale, fills
// sell orders, cancels them and closes buyer orders with a review.
type MarketService struct {
	repo       repository.Repository
	publisher  events.Publisher
	tradeTopic string
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time
}

// NewMarketService creates a new market service
func NewMarketService(repo repository.Repository, publisher events.Publisher, tradeTopic string, logger *slog.Logger, metrics *Metrics) *MarketService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketService{
		repo:       repo,
		publisher:  publisher,
		tradeTopic: tradeTopic,
		logger:     logger,
		metrics:    metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Sell freezes amount points of pointType and lists them at unitPrice
func (s *MarketService) Sell(ctx context.Context, userID int64, pointType models.PointType, amount, unitPrice decimal.Decimal) (order *models.Order, err error) {
	defer s.observe("sell", time.Now(), &err)

	amount = models.RoundPoints(amount)
	unitPrice = models.RoundMoney(unitPrice)
	if err := models.ValidateQuantity("amount", amount); err != nil {
		return nil, err
	}
	if err := models.ValidateQuantity("unit price", unitPrice); err != nil {
		return nil, err
	}
	if pointType, err = models.ParsePointType(string(pointType)); err != nil {
		return nil, err
	}

	err = s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		l := ledger.New(tx, tx)
		seller, err := l.Account(ctx, userID)
		if err != nil {
			return err
		}
		if err := l.Freeze(ctx, userID, pointType, amount); err != nil {
			return err
		}

		now := s.now()
		order = &models.Order{
			Type:            models.OrderSell,
			Status:          models.StatusActive,
			PointType:       pointType,
			Amount:          amount,
			RemainingAmount: amount,
			UnitPrice:       unitPrice,
			TotalPrice:      models.RoundMoney(amount.Mul(unitPrice)),
			Fee:             decimal.Zero,
			UserID:          userID,
			SellerID:        userID,
			SellerName:      seller.Username,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create sell order: %w", err)
		}
		return l.Flush(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sell order listed",
		"order_id", order.ID, "user_id", userID, "point_type", pointType,
		"amount", amount.String(), "unit_price", unitPrice.String())
	return order, nil
}

// Buy fills amount points of an active sell order. The buyer pays cost plus
// fee and the seller receives cost minus fee.
func (s *MarketService) Buy(ctx context.Context, orderID, buyerID int64, amount decimal.Decimal) (result *models.SettlementResult, err error) {
	defer s.observe("buy", time.Now(), &err)

	amount = models.RoundPoints(amount)
	if err := models.ValidateQuantity("amount", amount); err != nil {
		return nil, err
	}

	var (
		sell     *models.Order
		buyOrder *models.Order
	)
	err = s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		// lock order: the order row, then both accounts by ascending user id
		sell, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if sell.Type != models.OrderSell || sell.Status != models.StatusActive {
			return fmt.Errorf("%w: order %d is %s", models.ErrOrderNotAvailable, orderID, sell.Status)
		}
		if sell.RemainingAmount.LessThan(amount) {
			return fmt.Errorf("%w: order %d has %s left, requested %s",
				models.ErrInsufficientRemaining, orderID, sell.RemainingAmount, amount)
		}

		l := ledger.New(tx, tx)
		for _, id := range lockOrder(buyerID, sell.SellerID) {
			if _, err := l.Account(ctx, id); err != nil {
				return err
			}
		}
		buyer, err := l.Account(ctx, buyerID)
		if err != nil {
			return err
		}

		cost := models.RoundMoney(amount.Mul(sell.UnitPrice))
		fee := models.RoundMoney(cost.Mul(models.FeeRate))
		finalPay := cost.Add(fee)
		proceeds := cost.Sub(fee)
		if buyer.Balance.LessThan(finalPay) {
			return fmt.Errorf("%w: balance %s, required %s", models.ErrInsufficientBalance, buyer.Balance, finalPay)
		}

		seller, err := l.Account(ctx, sell.SellerID)
		if err != nil {
			return err
		}

		if err := l.ApplyDelta(ctx, buyerID, ledger.Cash, finalPay.Neg()); err != nil {
			return err
		}
		if err := l.ApplyDelta(ctx, buyerID, ledger.AvailableField(sell.PointType), amount); err != nil {
			return err
		}
		if err := l.ApplyDelta(ctx, sell.SellerID, ledger.FrozenField(sell.PointType), amount.Neg()); err != nil {
			return err
		}
		if err := l.ApplyDelta(ctx, sell.SellerID, ledger.Cash, proceeds); err != nil {
			return err
		}

		now := s.now()
		if err := sell.Fill(amount, now); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, sell); err != nil {
			return fmt.Errorf("save order %d: %w", sell.ID, err)
		}

		buyOrder = &models.Order{
			Type:            models.OrderBuy,
			Status:          models.StatusPaid,
			PointType:       sell.PointType,
			Amount:          amount,
			RemainingAmount: amount,
			UnitPrice:       sell.UnitPrice,
			TotalPrice:      cost,
			Fee:             fee,
			UserID:          buyerID,
			SellerID:        sell.SellerID,
			SellerName:      seller.Username,
			BuyerName:       buyer.Username,
			CreatedAt:       now,
			UpdatedAt:       now,
			PaidAt:          &now,
		}
		if err := tx.CreateOrder(ctx, buyOrder); err != nil {
			return fmt.Errorf("create buy order: %w", err)
		}

		desc := fmt.Sprintf("%s %s @ %s", amount, sell.PointType, sell.UnitPrice.StringFixed(models.MoneyPlaces))
		entries := []ledger.Entry{
			{UserID: buyerID, Type: models.TxBuy, Title: "Bought " + string(sell.PointType), Description: desc, Amount: finalPay, OrderID: &sell.ID},
			{UserID: sell.SellerID, Type: models.TxSell, Title: "Sold " + string(sell.PointType), Description: desc, Amount: proceeds, OrderID: &sell.ID},
			{UserID: sell.SellerID, Type: models.TxFee, Title: "Trading fee", Description: desc, Amount: fee, OrderID: &sell.ID},
		}
		for _, e := range entries {
			if _, err := l.Record(ctx, e); err != nil {
				return err
			}
		}
		if err := l.Flush(ctx); err != nil {
			return err
		}

		result = &models.SettlementResult{
			OrderID:         sell.ID,
			BuyOrderID:      buyOrder.ID,
			Cost:            cost,
			Fee:             fee,
			FinalPay:        finalPay,
			RemainingAmount: sell.RemainingAmount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order filled",
		"order_id", sell.ID, "buy_order_id", buyOrder.ID, "buyer_id", buyerID, "seller_id", sell.SellerID,
		"amount", amount.String(), "cost", result.Cost.String(), "fee", result.Fee.String(),
		"remaining", result.RemainingAmount.String())
	s.publishTrade(ctx, sell, buyOrder, result)
	return result, nil
}

// Cancel withdraws an active sell order and returns the unfrozen amount
func (s *MarketService) Cancel(ctx context.Context, orderID, requesterID int64) (released decimal.Decimal, err error) {
	defer s.observe("cancel", time.Now(), &err)

	err = s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Type != models.OrderSell || order.Status != models.StatusActive {
			return fmt.Errorf("%w: order %d is %s", models.ErrOrderNotCancelable, orderID, order.Status)
		}
		if order.SellerID != requesterID {
			return fmt.Errorf("%w: order %d belongs to another user", models.ErrForbidden, orderID)
		}

		l := ledger.New(tx, tx)
		released = order.RemainingAmount
		if err := l.Unfreeze(ctx, order.SellerID, order.PointType, released); err != nil {
			return err
		}
		if err := order.TransitionTo(models.StatusCancelled, s.now()); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, order); err != nil {
			return fmt.Errorf("save order %d: %w", order.ID, err)
		}
		return l.Flush(ctx)
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.logger.Info("sell order cancelled", "order_id", orderID, "user_id", requesterID, "released", released.String())
	return released, nil
}

// Review rates a paid buyer order and completes it
func (s *MarketService) Review(ctx context.Context, orderID, requesterID int64, rating int, comment string) (order *models.Order, err error) {
	defer s.observe("review", time.Now(), &err)

	err = s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.StatusPaid {
			return fmt.Errorf("%w: order %d is %s", models.ErrInvalidOrderStatus, orderID, order.Status)
		}
		if order.UserID != requesterID {
			return fmt.Errorf("%w: order %d belongs to another user", models.ErrForbidden, orderID)
		}
		if rating < 1 || rating > 5 {
			return fmt.Errorf("%w: rating must be between 1 and 5", models.ErrInvalidInput)
		}

		order.Rating = &rating
		order.Comment = comment
		if err := order.TransitionTo(models.StatusCompleted, s.now()); err != nil {
			return err
		}
		return tx.SaveOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListActive returns active sell orders, optionally for one point type
func (s *MarketService) ListActive(ctx context.Context, pointType string) ([]models.Order, error) {
	var pt models.PointType
	if pointType != "" {
		var err error
		if pt, err = models.ParsePointType(pointType); err != nil {
			return nil, err
		}
	}
	return s.repo.ListActiveOrders(ctx, pt)
}

// MyOrders returns every order owned by the user, newest first
func (s *MarketService) MyOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.repo.ListUserOrders(ctx, userID)
}

// OrderDetail returns one of the user's own orders
func (s *MarketService) OrderDetail(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, orderID)
	}
	return order, nil
}

// lockOrder returns the account ids in the order their locks are taken.
// Two fills crossing between the same users lock in the same sequence.
func lockOrder(a, b int64) []int64 {
	if a > b {
		a, b = b, a
	}
	return []int64{a, b}
}

func (s *MarketService) publishTrade(ctx context.Context, sell, buy *models.Order, result *models.SettlementResult) {
	env, err := events.NewEnvelope(events.TradeSettled, 1, chimw.GetReqID(ctx))
	if err != nil {
		s.logger.Error("build trade event", "error", err)
		return
	}
	evt := events.TradeSettledEvent{
		Envelope:        env,
		SellOrderID:     sell.ID,
		BuyOrderID:      buy.ID,
		SellerID:        sell.SellerID,
		BuyerID:         buy.UserID,
		PointType:       sell.PointType,
		Amount:          buy.Amount,
		UnitPrice:       sell.UnitPrice,
		Cost:            result.Cost,
		Fee:             result.Fee,
		RemainingAmount: result.RemainingAmount,
	}
	if err := s.publisher.PublishJSON(ctx, s.tradeTopic, strconv.FormatInt(sell.ID, 10), evt); err != nil {
		s.metrics.IncEventFailure()
		s.logger.Warn("trade event not published", "order_id", sell.ID, "error", err)
	}
}

func (s *MarketService) observe(op string, start time.Time, errp *error) {
	err := *errp
	s.metrics.ObserveSettlement(op, err, time.Since(start))
	if err != nil && isBusinessError(err) {
		s.logger.Warn("market operation rejected", "operation", op, "error", err)
	} else if err != nil {
		s.logger.Error("market operation failed", "operation", op, "error", err)
	}
}

var businessErrors = []error{
	models.ErrInvalidInput,
	models.ErrAccountNotFound,
	models.ErrOrderNotFound,
	models.ErrInsufficientPoints,
	models.ErrInsufficientBalance,
	models.ErrInsufficientRemaining,
	models.ErrOrderNotAvailable,
	models.ErrOrderNotCancelable,
	models.ErrInvalidOrderStatus,
	models.ErrForbidden,
	models.ErrNegativeBalance,
	models.ErrCardNotFound,
	models.ErrTransactionNotFound,
}

func isBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
