package history

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/domain"
	"github.com/aristath/forts-trader/pkg/dates"
)

// Service keeps local candle history up to date and serves it to advisors.
type Service struct {
	repository *Repository
	provider   *Provider
	now        func() time.Time
	log        zerolog.Logger
}

// NewService creates the history service.
func NewService(repository *Repository, provider *Provider, log zerolog.Logger) *Service {
	return &Service{
		repository: repository,
		provider:   provider,
		now:        time.Now,
		log:        log.With().Str("component", "history").Logger(),
	}
}

// Read returns the stored candles of the security in time order.
func (s *Service) Read(securityCode string) ([]domain.Candle, error) {
	bars, err := s.repository.Read(securityCode)
	if err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(bars))
	for _, b := range bars {
		candles = append(candles, domain.Candle{
			SecurityCode: securityCode,
			Time:         b.Time,
			ClosePrice:   b.ClosePrice,
			Volume:       b.Volume,
		})
	}
	return candles, nil
}

// Update downloads the missing tail of a single futures contract.
// Contracts that have not started trading yet and expired contracts that
// already hold data are left untouched.
func (s *Service) Update(securityCode string) error {
	if !s.provider.Supports(securityCode) {
		s.log.Debug().Str("security", securityCode).Msg("No data vendor, skipping update")
		return nil
	}

	baseDate, err := ExpirationDate(securityCode)
	if err != nil {
		return err
	}

	today := dates.DateOf(s.now())
	beginDate := dates.FirstDayOfMonth(baseDate.AddDate(0, -3, 0))
	// Contract not yet trading.
	if today.Before(beginDate) {
		return nil
	}

	stored, err := s.repository.Read(securityCode)
	if err != nil {
		return err
	}

	// Expired contract with data stays as is.
	if baseDate.Before(today) && len(stored) > 0 {
		s.log.Debug().Str("security", securityCode).Msg("Expired contract, skipping update")
		return nil
	}

	if len(stored) > 0 {
		beginDate = dates.DateOf(stored[len(stored)-1].Time)
	}

	return s.download(securityCode, stored, beginDate, today)
}

// UpdateGlued downloads a continuous (glued) contract series used for
// backtests, walking forward a year at a time from 2009.
func (s *Service) UpdateGlued(securityCode string) error {
	if !s.provider.Supports(securityCode) {
		s.log.Debug().Str("security", securityCode).Msg("No data vendor, skipping update")
		return nil
	}

	today := dates.DateOf(s.now())
	for {
		stored, err := s.repository.Read(securityCode)
		if err != nil {
			return err
		}

		beginDate := time.Date(2009, 1, 1, 0, 0, 0, 0, time.Local)
		if len(stored) > 0 {
			beginDate = dates.DateOf(stored[len(stored)-1].Time)
		}
		endDate := beginDate.AddDate(1, 0, 0)
		if endDate.After(today) {
			endDate = today
		}

		if err := s.download(securityCode, stored, beginDate, endDate); err != nil {
			return err
		}

		if !endDate.Before(today) {
			return nil
		}
	}
}

func (s *Service) download(securityCode string, stored []Bar, beginDate, endDate time.Time) error {
	s.log.Info().
		Str("security", securityCode).
		Time("begin", beginDate).
		Time("end", endDate).
		Msg("Downloading candles")

	bars, err := s.provider.LoadCandles(securityCode, beginDate, endDate)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}

	s.log.Info().
		Stringer("first", bars[0]).
		Stringer("last", bars[len(bars)-1]).
		Msg("Downloaded candles")

	// Today's last bar may still be forming.
	today := dates.DateOf(s.now())
	if dates.DateOf(bars[len(bars)-1].Time).Equal(today) {
		bars = bars[:len(bars)-1]
	}

	return s.repository.Save(securityCode, append(stored, bars...))
}
