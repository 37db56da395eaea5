package service

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"edushare/internal/config"
)

// SettingsService holds the runtime-tunable knobs behind typed accessors.
// Values are seeded from config at boot and may be changed while the server
// runs; everything is guarded by one RWMutex.
type SettingsService struct {
	mu sync.RWMutex

	promotionActive       bool
	promoDiscount         decimal.Decimal
	notificationFrequency time.Duration
	lastDigestSentAt      time.Time
}

func NewSettingsService(cfg *config.WithdrawalConfig) *SettingsService {
	return &SettingsService{
		promotionActive:       cfg.PromotionActive,
		promoDiscount:         decimal.NewFromFloat(cfg.PromoDiscount),
		notificationFrequency: 24 * time.Hour,
	}
}

func (s *SettingsService) PromotionActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.promotionActive
}

func (s *SettingsService) PromoDiscount() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.promoDiscount
}

func (s *SettingsService) SetPromotion(active bool, discount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promotionActive = active
	s.promoDiscount = discount
}

func (s *SettingsService) NotificationFrequency() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notificationFrequency
}

func (s *SettingsService) SetNotificationFrequency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notificationFrequency = d
}

func (s *SettingsService) LastDigestSentAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastDigestSentAt
}

func (s *SettingsService) MarkDigestSent(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDigestSentAt = at
}
