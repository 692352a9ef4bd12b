package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffBoundsOneRetry(t *testing.T) {
	bc := NewBackoffCalculator(10*time.Second, 5*time.Minute, 2)
	d := bc.NextDelay()
	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 30*time.Second)
}

func TestBackoffBoundsTwoRetries(t *testing.T) {
	bc := NewBackoffCalculator(10*time.Second, 5*time.Minute, 2)
	total := bc.NextDelay() + bc.NextDelay()
	assert.GreaterOrEqual(t, total, 30*time.Second)
	assert.LessOrEqual(t, total, 70*time.Second)
}

func TestBitfinexParse(t *testing.T) {
	s := Source{Kind: Bitfinex, Label: "bitfinex"}
	price, err := s.parseResponse([]byte(`[25.8166]`))
	assert.NoError(t, err)
	assert.Equal(t, 25.8166, price)
}

func TestCoinGeckoParse(t *testing.T) {
	s := Source{Kind: CoinGecko, Label: "coingecko"}
	price, err := s.parseResponse([]byte(`{"concordium":{"eur":0.00654}}`))
	assert.NoError(t, err)
	assert.Equal(t, 0.00654, price)
}

func TestCoinMarketCapParseError(t *testing.T) {
	s := Source{Kind: CoinMarketCap, Label: "coinmarketcap"}
	_, err := s.parseResponse([]byte(`{"status":{"error_code":1002,"error_message":"rate limited"},"data":{}}`))
	assert.Error(t, err)
}

func TestCoinMarketCapParseOK(t *testing.T) {
	s := Source{Kind: CoinMarketCap, Label: "coinmarketcap"}
	body := `{"status":{"error_code":0},"data":{"18031":{"quote":{"EUR":{"price":0.00654}}}}}`
	price, err := s.parseResponse([]byte(body))
	assert.NoError(t, err)
	assert.Equal(t, 0.00654, price)
}

func TestValidateRejectsNegative(t *testing.T) {
	assert.Error(t, validate(-1))
}

func TestValidateAcceptsPositive(t *testing.T) {
	assert.NoError(t, validate(0.00654))
}
