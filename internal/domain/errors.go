package domain

import "errors"

var (
	// ErrConnection means the broker gateway was unreachable. Fatal to the
	// current operation, safe to retry on the next cycle.
	ErrConnection = errors.New("broker gateway unreachable")

	// ErrPortfolioNotFound aborts strategy start.
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrDataUnavailable marks an empty response from a history provider.
	ErrDataUnavailable = errors.New("no historical data available")

	// ErrUnknownAdvisor is returned for an algorithm name the registry does
	// not know.
	ErrUnknownAdvisor = errors.New("unknown advisor")

	// ErrNoMoney means the portfolio has no available amount to trade with.
	ErrNoMoney = errors.New("no available amount")
)
