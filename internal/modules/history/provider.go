package history

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/domain"
)

const (
	finamPeriodMinutes5 = 3
	finamPeriodDay      = 8

	urlDateFormat = "02.01.2006"

	// initialRetryDelay doubles after every failed round over all sources.
	initialRetryDelay = 20 * time.Second
)

// SecuritySource maps a security code to its identifiers at the data vendors.
// A zero vendor code means the vendor does not carry the security.
type SecuritySource struct {
	Code      string `yaml:"code"`
	FinamCode int    `yaml:"finam_code"`
	MfdCode   int    `yaml:"mfd_code"`
}

// ProviderConfig configures the remote candle downloads.
type ProviderConfig struct {
	Securities []SecuritySource
	RetryCount int
	Timeout    time.Duration
}

// DefaultProviderConfig returns the download settings used in production.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		RetryCount: 3,
		Timeout:    25 * time.Second,
	}
}

// Provider downloads five-minute candles from public CSV exports.
// Vendors are tried in priority order: mfd first, then finam.
type Provider struct {
	cfg    ProviderConfig
	client *http.Client
	sleep  func(time.Duration)
	log    zerolog.Logger
}

// NewProvider creates a candle provider.
func NewProvider(cfg ProviderConfig, log zerolog.Logger) *Provider {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		sleep:  time.Sleep,
		log:    log.With().Str("component", "history_provider").Logger(),
	}
}

// Supports reports whether any vendor carries the security.
func (p *Provider) Supports(securityCode string) bool {
	_, err := p.findSource(securityCode)
	return err == nil
}

// LoadCandles downloads candles for [beginDate, endDate], trying each vendor
// in turn and retrying whole rounds with a doubling delay.
func (p *Provider) LoadCandles(securityCode string, beginDate, endDate time.Time) ([]Bar, error) {
	if beginDate.After(endDate) {
		return nil, fmt.Errorf("begin date %v after end date %v", beginDate, endDate)
	}

	source, err := p.findSource(securityCode)
	if err != nil {
		return nil, err
	}

	var urls []string
	if source.MfdCode != 0 {
		urls = append(urls, mfdURL(source.MfdCode, beginDate, endDate))
	}
	if source.FinamCode != 0 {
		urls = append(urls, finamURL(source.FinamCode, finamPeriodMinutes5, beginDate, endDate))
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no data vendor for security %s", securityCode)
	}

	delay := initialRetryDelay
	for retry := 1; ; retry++ {
		for i, url := range urls {
			bars, err := p.fetch(url)
			if err == nil {
				return bars, nil
			}
			p.log.Warn().
				Err(err).
				Str("security", securityCode).
				Int("retry", retry).
				Msg("History download attempt failed")
			if retry >= p.cfg.RetryCount && i == len(urls)-1 {
				return nil, fmt.Errorf("%w: %s: %v", domain.ErrDataUnavailable, securityCode, err)
			}
		}
		p.sleep(delay)
		delay *= 2
	}
}

func (p *Provider) findSource(securityCode string) (SecuritySource, error) {
	for _, s := range p.cfg.Securities {
		if s.Code == securityCode {
			return s, nil
		}
	}
	return SecuritySource{}, fmt.Errorf("unknown history security %s", securityCode)
}

func (p *Provider) fetch(url string) ([]Bar, error) {
	p.log.Debug().Str("url", url).Msg("Requesting candles")

	resp, err := p.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	bars, err := parseCSV(string(body))
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("empty candle response")
	}
	return bars, nil
}

// parseCSV parses the vendor export format. The first line is a header,
// each following line is
// <TICKER>,<PER>,<DATE>,<TIME>,<OPEN>,<HIGH>,<LOW>,<CLOSE>,<VOL>
// with DATE as yyyyMMdd and TIME as HHmmss.
func parseCSV(content string) ([]Bar, error) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	var bars []Bar
	for i, line := range lines {
		if i == 0 || line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 9 {
			return nil, fmt.Errorf("line %d: expected 9 fields, got %d", i+1, len(fields))
		}

		stamp, err := time.ParseInLocation("20060102 150405", fields[2]+" "+fields[3], time.Local)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}

		var values [5]float64
		for j := 0; j < 5; j++ {
			values[j], err = strconv.ParseFloat(fields[4+j], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
		}

		bars = append(bars, Bar{
			Time:       stamp,
			OpenPrice:  values[0],
			HighPrice:  values[1],
			LowPrice:   values[2],
			ClosePrice: values[3],
			Volume:     values[4],
		})
	}
	return bars, nil
}

func mfdURL(mfdCode int, beginDate, endDate time.Time) string {
	return fmt.Sprintf("http://mfd.ru/export/handler.ashx/data.txt?TickerGroup=26&Tickers=%d"+
		"&Alias=false&Period=2&timeframeValue=1&timeframeDatePart=day"+
		"&StartDate=%s&EndDate=%s&SaveFormat=0&SaveMode=0&FileName=data.txt"+
		"&FieldSeparator=%%2C&DecimalSeparator=.&DateFormat=yyyyMMdd&TimeFormat=HHmmss"+
		"&DateFormatCustom=&TimeFormatCustom=&AddHeader=true&RecordFormat=0&Fill=false",
		mfdCode, beginDate.Format(urlDateFormat), endDate.Format(urlDateFormat))
}

func finamURL(finamCode, periodCode int, beginDate, endDate time.Time) string {
	// Finam counts months from zero.
	return fmt.Sprintf("http://export.finam.ru/data.txt?d=d&market=14&em=%d"+
		"&df=%d&mf=%d&yf=%d&dt=%d&mt=%d&yt=%d&p=%d"+
		"&f=data.txt&e=.txt&cn=data&dtf=1&tmf=1&MSOR=0&sep=1&sep2=1&datf=1&at=1",
		finamCode,
		beginDate.Day(), int(beginDate.Month())-1, beginDate.Year(),
		endDate.Day(), int(endDate.Month())-1, endDate.Year(),
		periodCode)
}
