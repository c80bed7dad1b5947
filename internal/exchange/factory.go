package exchange

// DefaultConstructors enumerates the supported exchange set. Passing a nil
// config for an exchange selects its built-in defaults.
func DefaultConstructors(binanceCfg, coinbaseCfg, okxCfg *ClientConfig) map[string]Constructor {
	return map[string]Constructor{
		"binance":  func() (Client, error) { return NewBinanceClient(binanceCfg) },
		"coinbase": func() (Client, error) { return NewCoinbaseClient(coinbaseCfg) },
		"okx":      func() (Client, error) { return NewOkxClient(okxCfg) },
	}
}
